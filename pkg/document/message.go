package document

// MessageHandler is optionally implemented by a Handler that accepts
// free-form driver input after Execute has started it. The base block
// contract (Handler) is request-less once running; ai_chat is the first
// block type whose execution is an ongoing conversation a front-end needs
// to keep feeding (new user messages, tool-result resolutions, system
// prompt updates) rather than a single fire-and-forget run.
type MessageHandler interface {
	HandleMessage(msg map[string]any) error
}

// SendBlockMessage delivers msg to blockID's running Handler, if it
// implements MessageHandler. Returns an error if the block has no
// handler, or if its handler doesn't accept messages.
func (a *Actor) SendBlockMessage(blockID string, msg map[string]any) error {
	hCh := make(chan Handler, 1)
	a.submit(func() {
		idx, ok := a.indexByID[blockID]
		if !ok {
			hCh <- nil
			return
		}
		hCh <- a.blocks[idx].Handler
	})
	h := <-hCh
	if h == nil {
		return &Error{Op: "SendBlockMessage", BlockID: blockID, Err: ErrBlockNotFound}
	}
	mh, ok := h.(MessageHandler)
	if !ok {
		return &Error{Op: "SendBlockMessage", BlockID: blockID, Err: ErrBlockNotInteractive}
	}
	return mh.HandleMessage(msg)
}

package ipc

// SendMessage encodes m and sends it with its ancillary handle, if any.
func (c *Connector) SendMessage(m Message) error {
	payload, err := m.Encode()
	if err != nil {
		return err
	}
	return c.Send(HeaderFor(m, payload), payload, m.Ancillary())
}

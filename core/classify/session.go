package classify

// Session classifies a document delivered in chunks. The result after Finish is
// the same as Classify on the concatenation of every chunk, however the
// document was split.
//
// A Session is not safe for concurrent use.
type Session struct {
	c     *Classifier
	s     *scorer
	carry []byte
}

// NewSession starts an empty session. withTrace controls whether Finish
// reports a trace.
func (c *Classifier) NewSession(withTrace bool) *Session {
	n := c.m.NGramSize()
	return &Session{
		c:     c,
		s:     c.newScorer(withTrace),
		carry: make([]byte, 0, 2*n),
	}
}

// Write feeds the next chunk of the document. It never fails.
func (s *Session) Write(p []byte) (int, error) {
	n := s.c.m.NGramSize()
	buf := append(s.carry, p...)

	for _, gram := range s.c.ext.All(buf) {
		s.s.add(gram)
	}

	// Keep the last n-1 bytes: the start of every n-gram not yet complete.
	keep := min(len(buf), n-1)
	s.carry = append(s.carry[:0], buf[len(buf)-keep:]...)
	return len(p), nil
}

// WriteString is Write for strings.
func (s *Session) WriteString(p string) (int, error) {
	return s.Write([]byte(p))
}

// Finish returns the result of everything written since the last Reset.
// The session keeps its state, so further writes continue the same document.
func (s *Session) Finish() Result {
	return s.s.result().Clone()
}

// Reset discards everything written so the session can score a new document.
func (s *Session) Reset() {
	s.s.reset()
	s.carry = s.carry[:0]
}

package app

import (
	"errors"

	log "github.com/echocat/slf4g"
)

type namedCloser struct {
	name  string
	close func() error
}

// closerStack releases resources in reverse acquisition order. Every closer
// runs at most once, even when closeAll is called repeatedly.
type closerStack struct {
	entries []namedCloser
}

func (s *closerStack) push(name string, close func() error) {
	s.entries = append(s.entries, namedCloser{name, close})
}

func (s *closerStack) closeAll() error {
	var errs []error
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if err := e.close(); err != nil {
			log.WithError(err).
				With("resource", e.name).
				Warn("Cannot release resource.")
			errs = append(errs, err)
			continue
		}
		log.With("resource", e.name).Debug("Resource released.")
	}
	s.entries = nil
	return errors.Join(errs...)
}

func (s *closerStack) len() int {
	return len(s.entries)
}

package receiver

import (
	"sync"

	"github.com/go-logr/logr"
)

// Factory manages one Stream per SSRC, mirroring the teacher's
// buffer.Factory: a single RWMutex-guarded map keyed by SSRC, with
// lazy construction on first use.
type Factory struct {
	mu         sync.RWMutex
	streams    map[uint32]*Stream
	latencyCfg Config
	logger     logr.Logger
}

// NewFactory returns a Factory that constructs new Streams using
// defaultCfg as a template, with SSRC/SenderSSRC overridden per call to
// GetOrNew.
func NewFactory(defaultCfg Config, logger logr.Logger) *Factory {
	if logger.GetSink() == nil {
		logger = Logger
	}
	return &Factory{
		streams:    make(map[uint32]*Stream),
		latencyCfg: defaultCfg,
		logger:     logger,
	}
}

// GetOrNew returns the existing Stream for ssrc, or constructs one using
// the factory's default Config with SSRC and senderSSRC filled in.
func (f *Factory) GetOrNew(ssrc, senderSSRC uint32) (*Stream, error) {
	f.mu.RLock()
	s, ok := f.streams[ssrc]
	f.mu.RUnlock()
	if ok {
		return s, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.streams[ssrc]; ok {
		return s, nil
	}

	cfg := f.latencyCfg
	cfg.SSRC = ssrc
	cfg.SenderSSRC = senderSSRC
	s, err := NewStream(cfg, f.logger)
	if err != nil {
		return nil, err
	}
	f.streams[ssrc] = s
	return s, nil
}

// Get returns the Stream for ssrc, if one has been created.
func (f *Factory) Get(ssrc uint32) (*Stream, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.streams[ssrc]
	return s, ok
}

// Remove closes and forgets the Stream for ssrc, if present.
func (f *Factory) Remove(ssrc uint32) {
	f.mu.Lock()
	s, ok := f.streams[ssrc]
	delete(f.streams, ssrc)
	f.mu.Unlock()

	if ok {
		s.Close()
	}
}

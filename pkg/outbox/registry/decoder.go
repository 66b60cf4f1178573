package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/checkout-engine/pkg/enums"
)

// DecoderFunc turns the data section of an envelope into a typed payload.
type DecoderFunc func(payload json.RawMessage) (any, error)

// JSONDecoder decodes into a fresh *T. Empty and null payloads are rejected.
func JSONDecoder[T any]() DecoderFunc {
	return func(payload json.RawMessage) (any, error) {
		if isBlank(payload) {
			return nil, fmt.Errorf("empty %T payload", new(T))
		}
		out := new(T)
		if err := json.Unmarshal(payload, out); err != nil {
			return nil, fmt.Errorf("decode %T: %w", out, err)
		}
		return out, nil
	}
}

// DecoderRegistry holds versioned payload decoders for consumers.
type DecoderRegistry struct {
	mu     sync.RWMutex
	byType map[enums.OutboxEventType]map[int]DecoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{byType: map[enums.OutboxEventType]map[int]DecoderFunc{}}
}

// Register replaces any decoder already set for eventType at version.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder DecoderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.byType[eventType]
	if !ok {
		versions = map[int]DecoderFunc{}
		r.byType[eventType] = versions
	}
	versions[version] = decoder
}

// Handles reports whether any version of eventType can be decoded.
func (r *DecoderRegistry) Handles(eventType enums.OutboxEventType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[eventType]) > 0
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mu.RLock()
	decoder, ok := r.byType[eventType][version]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no decoder for %s@v%d", eventType, version)
	}
	return decoder(payload)
}

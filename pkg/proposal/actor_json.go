package proposal

import (
	"encoding/json"
	"fmt"

	"github.com/glasswing-labs/keel/pkg/contracts"
)

func marshalActor(actor contracts.ActorContext) (string, error) {
	b, err := json.Marshal(actor)
	if err != nil {
		return "", fmt.Errorf("marshal actor context: %w", err)
	}
	return string(b), nil
}

func unmarshalActor(raw string) (contracts.ActorContext, error) {
	var actor contracts.ActorContext
	if raw == "" {
		return actor, nil
	}
	if err := json.Unmarshal([]byte(raw), &actor); err != nil {
		return actor, fmt.Errorf("unmarshal actor context: %w", err)
	}
	return actor, nil
}

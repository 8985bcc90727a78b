package store

import (
	"encoding/json"

	"memoryd/internal/model"
)

type insertMessageJSON struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func encodeInsertMessages(msgs []model.InsertMessage) ([]byte, error) {
	out := make([]insertMessageJSON, len(msgs))
	for i, m := range msgs {
		out[i] = insertMessageJSON{Role: string(m.Role), Content: m.Content}
	}
	return json.Marshal(out)
}

func decodeInsertMessages(raw []byte) ([]model.InsertMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var decoded []insertMessageJSON
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	out := make([]model.InsertMessage, len(decoded))
	for i, m := range decoded {
		out[i] = model.InsertMessage{Role: model.Role(m.Role), Content: m.Content}
	}
	return out, nil
}

package common

import (
	"encoding/json"
	"strconv"
	"time"
)

// MessageTypeText marks plain text messages. Only text messages with a
// non-empty body participate in extraction; media and system messages are
// filtered out beforehand.
const MessageTypeText = "text"

// ChatMessage is a single message from a contact's chat history.
// Messages are immutable once ingested.
type ChatMessage struct {
	SenderID  string    `json:"sender_id"`
	RoomID    string    `json:"room_id"`
	Type      string    `json:"type"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// UserProfile is an immutable snapshot of a user's account record.
// Its serialized form is embedded verbatim in extraction prompts, so the
// field set is deliberately reduced to what the model should see.
type UserProfile struct {
	ID        string  `json:"id"`
	Nickname  string  `json:"nickname"`
	Remark    string  `json:"remark"`
	Account   string  `json:"account"`
	LabelIDs  []int64 `json:"label_ids"`
	Gender    int     `json:"gender"`
	Signature string  `json:"signature"`
	Country   string  `json:"country"`
	Province  string  `json:"province"`
	City      string  `json:"city"`
	Mobile    string  `json:"mobile"`
}

// WorkItem is the unit of extraction work: one (master, contact) pair and
// the contact's full message history. Items are created when a contact has
// both a profile and a non-empty history, and are never mutated afterwards.
type WorkItem struct {
	ContactID string
	Contact   UserProfile
	Master    UserProfile
	Messages  []ChatMessage
}

// GraphDocument is the candidate output of one extraction attempt,
// pre-validation. It mirrors the JSON contract the model is asked to
// produce.
type GraphDocument struct {
	Nodes     []GraphNode     `json:"nodes"`
	Relations []GraphRelation `json:"relations"`
}

// GraphNode is an entity in the candidate graph. ID and Label are lifted
// out of the JSON object; every other member stays in Props so the
// validator can inspect raw property values.
type GraphNode struct {
	ID    string
	Label string
	Props map[string]any
}

// UnmarshalJSON decodes a node from its flat JSON object form. Scalar
// numeric ids are stringified; non-scalar ids are left empty and rejected
// later by validation.
func (n *GraphNode) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch id := raw["id"].(type) {
	case string:
		n.ID = id
	case float64:
		n.ID = strconv.FormatFloat(id, 'f', -1, 64)
	}
	if label, ok := raw["label"].(string); ok {
		n.Label = label
	}

	delete(raw, "id")
	delete(raw, "label")
	n.Props = raw
	return nil
}

// GraphRelation is a typed edge between two nodes of the same document,
// referenced by node id. Properties is kept as a raw value so the
// validator can reject non-object shapes with a reason instead of the
// decoder failing the whole document.
type GraphRelation struct {
	Start      string
	End        string
	Type       string
	Properties any
}

// UnmarshalJSON decodes a relation from its JSON object form.
func (r *GraphRelation) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if s, ok := raw["start"].(string); ok {
		r.Start = s
	}
	if e, ok := raw["end"].(string); ok {
		r.End = e
	}
	if t, ok := raw["type"].(string); ok {
		r.Type = t
	}
	r.Properties = raw["properties"]
	return nil
}

// PropertyMap returns the relation's properties as a map if they are an
// object, or nil otherwise.
func (r *GraphRelation) PropertyMap() map[string]any {
	props, _ := r.Properties.(map[string]any)
	return props
}

package events

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/kiplm/kiplm/internal/catalog/builder"
	"github.com/kiplm/kiplm/internal/catalog/store"
)

// StepData describes one failed build step.
type StepData struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Error  string `json:"error"`
}

// BuildCompleteData contains build completion information
type BuildCompleteData struct {
	Full       bool       `json:"full"`
	Tables     []string   `json:"tables"`
	Updated    []string   `json:"updated"`
	Dropped    []string   `json:"dropped"`
	Failed     []StepData `json:"failed,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// PartData contains the record affected by a mutation
type PartData struct {
	Table  string        `json:"table"`
	IPN    string        `json:"ipn"`
	Record *store.Record `json:"record"`
}

// NewBuildCompleteMessage formats a build report as a message.
func NewBuildCompleteMessage(report *builder.Report) (Message, error) {
	data := BuildCompleteData{
		Full:       report.Full,
		Tables:     nonNil(report.Tables),
		Updated:    []string{},
		Dropped:    []string{},
		DurationMs: report.Duration.Milliseconds(),
	}
	for _, s := range report.Steps {
		if !s.OK() {
			data.Failed = append(data.Failed, StepData{
				Kind:   string(s.Kind),
				Target: s.Target,
				Error:  s.Err.Error(),
			})
			continue
		}
		switch s.Kind {
		case builder.StepUpdated:
			data.Updated = append(data.Updated, s.Target)
		case builder.StepDropped:
			data.Dropped = append(data.Dropped, s.Target)
		}
	}

	return newMessage(MessageTypeBuildComplete, data)
}

// NewPartMessage formats a created or updated record as a message.
func NewPartMessage(typ MessageType, table string, rec *store.Record) (Message, error) {
	return newMessage(typ, PartData{Table: table, IPN: rec.IPN(), Record: rec})
}

func newMessage(typ MessageType, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Timestamp: time.Now().UTC(), Data: raw}, nil
}

// PublishBuild broadcasts a build report. It matches the builder's Notify hook.
func (h *Hub) PublishBuild(report *builder.Report) {
	msg, err := NewBuildCompleteMessage(report)
	if err != nil {
		h.logger.Error("failed to format build report", zap.Error(err))
		return
	}
	h.Broadcast(msg)
}

// PublishPartCreated broadcasts a record creation.
func (h *Hub) PublishPartCreated(table string, rec *store.Record) {
	h.publishPart(MessageTypePartCreated, table, rec)
}

// PublishPartUpdated broadcasts a record update.
func (h *Hub) PublishPartUpdated(table string, rec *store.Record) {
	h.publishPart(MessageTypePartUpdated, table, rec)
}

func (h *Hub) publishPart(typ MessageType, table string, rec *store.Record) {
	msg, err := NewPartMessage(typ, table, rec)
	if err != nil {
		h.logger.Error("failed to format part event", zap.String("table", table), zap.Error(err))
		return
	}
	h.Broadcast(msg)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

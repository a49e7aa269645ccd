package app

import (
	"encoding/json"
	"time"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/ports"
)

// Topics publiés sur le bus par le pipeline.
const (
	TopicProgramResolving  = "program.resolving"
	TopicProgramResolved   = "program.resolved"
	TopicProgramFailed     = "program.failed"
	TopicEnclosureResolved = "enclosure.resolved"
)

// PipelineEvent est la charge utile JSON des événements du pipeline.
type PipelineEvent struct {
	Path       string    `json:"path"`
	Title      string    `json:"title,omitempty"`
	Episodes   int       `json:"episodes,omitempty"`
	AssetID    string    `json:"assetId,omitempty"`
	Error      string    `json:"error,omitempty"`
	Code       string    `json:"code,omitempty"`
	DurationMS int64     `json:"durationMs,omitempty"`
	At         time.Time `json:"at"`
}

func publish(bus ports.EventBus, topic string, evt PipelineEvent) {
	if bus == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return
	}
	bus.Publish(topic, b)
}

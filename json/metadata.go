package json

import (
	"time"

	"github.com/fwojciec/chorus"
)

type metadataDTO struct {
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	DurationMS int64             `json:"duration_ms"`
	Extra      map[string]string `json:"extra,omitempty"`
}

func marshalMetadata(m *chorus.Metadata) *metadataDTO {
	if m == nil {
		return nil
	}
	return &metadataDTO{
		Succeeded:  m.Succeeded,
		Failed:     m.Failed,
		DurationMS: m.Duration.Milliseconds(),
		Extra:      m.Extra,
	}
}

func unmarshalMetadata(dto *metadataDTO) *chorus.Metadata {
	if dto == nil {
		return nil
	}
	return &chorus.Metadata{
		Succeeded: dto.Succeeded,
		Failed:    dto.Failed,
		Duration:  time.Duration(dto.DurationMS) * time.Millisecond,
		Extra:     dto.Extra,
	}
}

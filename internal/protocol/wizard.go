package protocol

import (
	"errors"
	"strings"
	"time"
)

var ErrNameRequired = errors.New("protocol: name is required")

// WizardAnswers is the new-protocol wizard's result.
type WizardAnswers struct {
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Author          string      `json:"author"`
	PipetteVolume   string      `json:"pipetteVol"`
	PipetteChannels ChannelMode `json:"pipetteChannels"`
}

// FromWizard seeds a document from wizard answers. The left mount gets the
// chosen pipette; the right mount starts empty.
func FromWizard(a WizardAnswers, now time.Time) (Document, error) {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return Document{}, ErrNameRequired
	}
	vol := strings.TrimSpace(a.PipetteVolume)
	if vol == "" {
		vol = "p300"
	}
	mode := a.PipetteChannels
	if mode != ChannelMulti {
		mode = ChannelSingle
	}

	doc := Initial(now)
	doc.Metadata.Name = name
	doc.Metadata.Description = a.Description
	doc.Metadata.Author = a.Author
	doc.Pipettes = Pipettes{
		Left: &Pipette{
			Name:        vol + "_" + string(mode),
			ChannelMode: mode,
			Mount:       MountLeft,
		},
	}
	return doc, nil
}

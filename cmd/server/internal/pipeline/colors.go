package pipeline

import "hash/fnv"

// speakerPalette is the fixed color set the chat view draws from.
var speakerPalette = [...]string{"#00ffd5", "#ffb703", "#fb8500", "#8ecae6"}

// SpeakerColor maps a speaker label into the palette with FNV-1a so the
// same label gets the same color on every run.
func SpeakerColor(label string) string {
	h := fnv.New32a()
	h.Write([]byte(label))
	return speakerPalette[h.Sum32()%uint32(len(speakerPalette))]
}

// Package imaging converts encoded still images to and from the float32 RGB
// pixel arrays exchanged with dream transformers.
//
// Decode accepts any registered codec (JPEG and PNG are linked in). Encode
// clamps each channel to the 8-bit range before writing, so transforms may
// overshoot without wrapping around.
package imaging

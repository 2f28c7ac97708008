package domain

// PeerStatus is the last self-reported state of one peer. It is updated
// only by that peer's own status message, never inferred from media.
type PeerStatus struct {
	IsMuted     bool `json:"isMuted"`
	IsCameraOff bool `json:"isCameraOff"`
}

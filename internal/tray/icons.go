package tray

// Icon bitmaps for the tray's two states. The teacher's build embedded
// real .ico/.png assets; icon/theme assets are out of scope here, so
// these are deliberately minimal placeholders that let the tray package
// still compile and run standalone.
var (
	IconIdle   = []byte{0x89, 0x50, 0x4e, 0x47}
	IconActive = []byte{0x89, 0x50, 0x4e, 0x47}
)

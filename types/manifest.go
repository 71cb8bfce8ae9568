package types

// ManifestVersion is the manifest format version produced by this
// module.
const ManifestVersion uint32 = 1

// Manifest is the authoritative description of which module serves
// which call identifier at one epoch. Routes are held in canonical
// order (ascending CallID) and Root is the Merkle root over their
// leaves in that order.
type Manifest struct {
	Version uint32  `cramberry:"1"`
	Epoch   uint64  `cramberry:"2"`
	Root    Digest  `cramberry:"3"`
	Routes  []Route `cramberry:"4"`
}

// Route returns the route for id and whether the manifest contains it.
func (m Manifest) Route(id CallID) (Route, bool) {
	for _, r := range m.Routes {
		if r.CallID == id {
			return r, true
		}
	}
	return Route{}, false
}

// Version identifies an activated manifest.
type Version struct {
	Epoch uint64 `cramberry:"1"`
	Root  Digest `cramberry:"2"`
}

package apod

// ImageFiles stores image bytes at paths derived from their content hash.
type ImageFiles interface {
	// PathFor returns the path an image with this hash and extension lives at.
	PathFor(hash, ext string) string

	// Write stores data at PathFor(hash, ext) and returns that path.
	// The write is atomic: on any error nothing is left at the final path.
	Write(hash, ext string, data []byte) (string, error)

	// Read returns the bytes stored at path.
	Read(path string) ([]byte, error)

	// Remove deletes the file at path. Removing a missing file is not an error.
	Remove(path string) error

	// List returns the paths of all stored image files.
	List() ([]string, error)
}

package stackrestore

import (
	"embed"
	"io/fs"
)

//go:embed assets
var embeddedAssets embed.FS

// CredentialBlobName is the asset holding the encrypted credential file.
const CredentialBlobName = "assets/credentials.age"

// EmbeddedCredentialBlob returns the credential blob compiled into the
// binary, if the build included one.
func EmbeddedCredentialBlob() ([]byte, bool) {
	data, err := fs.ReadFile(embeddedAssets, CredentialBlobName)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

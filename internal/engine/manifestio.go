package engine

import (
	"bytes"
	"context"
	"crypto/rand"
	"strings"

	"github.com/sitehost/publisher/internal/backend"
	"github.com/sitehost/publisher/internal/manifest"
)

const (
	manifestFolderPrefix = ".publisher."
	manifestFileName     = ".manifest"
	manifestTmpFileName  = ".manifest.new"

	// legacyVersionFile and legacyMDBFile are the two paths whose
	// co-presence marks a pre-manifest "rukzuk publisher" destination,
	// matching ManifestUploadManager._old_publish's exact check.
	legacyVersionFile = "server/version.json"
	legacyMDBFile     = "mdb/mdb.php"

	randomSuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	randomSuffixLength   = 10
)

// randomSuffix generates a 10-character lowercase-alphanumeric suffix,
// matching manifestbased.py's random_string().
func randomSuffix() (string, error) {
	buf := make([]byte, randomSuffixLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, randomSuffixLength)
	for i, b := range buf {
		out[i] = randomSuffixAlphabet[int(b)%len(randomSuffixAlphabet)]
	}
	return string(out), nil
}

// findManifestFolder scans the remote root for an existing folder
// matching the manifestFolderPrefix convention. Mirrors
// get_manifest_folder's "scans '.' for dirs starting with .publisher"
// behavior.
func findManifestFolder(ctx context.Context, b backend.Backend) (string, bool, error) {
	names, err := b.Dir(ctx, ".")
	if err != nil {
		return "", false, err
	}
	for _, name := range names {
		if strings.HasPrefix(name, manifestFolderPrefix) {
			return name, true, nil
		}
	}
	return "", false, nil
}

// newManifestFolder generates a fresh, never-before-seen manifest folder
// name.
func newManifestFolder() (string, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}
	return manifestFolderPrefix + suffix, nil
}

// isLegacyPublish reports whether the remote looks like a pre-manifest
// publish destination, matching _old_publish's two-file existence check.
func isLegacyPublish(ctx context.Context, b backend.Backend) (bool, error) {
	hasVersion, err := b.Exists(ctx, legacyVersionFile)
	if err != nil || !hasVersion {
		return false, err
	}
	hasMDB, err := b.Exists(ctx, legacyMDBFile)
	if err != nil {
		return false, err
	}
	return hasMDB, nil
}

// remoteListFromFolderStructure synthesizes a FileList for a legacy
// destination by listing its top-level entries directly: directories are
// assumed cache-class (so the first real publish fully re-lays them out)
// and files are assumed default-class with a zero size/checksum so every
// one of them whose local copy is non-empty is treated as changed. Mirrors
// _get_remote_list_from_folder_structure.
func remoteListFromFolderStructure(ctx context.Context, b backend.Backend) (*manifest.FileList, error) {
	names, err := b.Dir(ctx, ".")
	if err != nil {
		return nil, err
	}
	fl := manifest.New()
	for _, name := range names {
		typ, err := b.Type(ctx, name)
		if err != nil {
			return nil, err
		}
		switch typ {
		case backend.TypeDir:
			fl.Folders[name] = manifest.Entry{Kind: manifest.Folder, Path: name, Permission: manifest.PermCache}
		case backend.TypeFile:
			fl.Files[name] = manifest.Entry{Kind: manifest.File, Path: name, Permission: manifest.PermDefault}
		}
	}
	return fl, nil
}

// downloadManifestFile downloads name from folder, returning (nil, nil)
// if it does not exist.
func downloadManifestFile(ctx context.Context, b backend.Backend, folder, name string) ([]byte, error) {
	path := folder + "/" + name
	exists, err := b.Exists(ctx, path)
	if err != nil || !exists {
		return nil, err
	}
	var buf bytes.Buffer
	if err := b.Download(ctx, path, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// getRemoteList resolves the remote side's FileList: an existing
// manifest (merged with any in-progress recovery manifest), else a
// legacy-publish heuristic, else an empty tree for a brand new
// destination. Mirrors ManifestUploadManager._get_remote_list.
func getRemoteList(ctx context.Context, b backend.Backend, manifestFolder string, folderExists bool) (*manifest.FileList, error) {
	if folderExists {
		primary, err := downloadManifestFile(ctx, b, manifestFolder, manifestFileName)
		if err != nil {
			return nil, err
		}
		if primary != nil {
			recovery, err := downloadManifestFile(ctx, b, manifestFolder, manifestTmpFileName)
			if err != nil {
				return nil, err
			}
			fl, err := manifest.ReadManifest(primary, recovery)
			if err != nil {
				return nil, err
			}
			if err := fl.RemoveInvalids(func(path string) (bool, error) {
				return b.Exists(ctx, path)
			}); err != nil {
				return nil, err
			}
			return fl, nil
		}
	}
	legacy, err := isLegacyPublish(ctx, b)
	if err != nil {
		return nil, err
	}
	if legacy {
		return remoteListFromFolderStructure(ctx, b)
	}
	return manifest.New(), nil
}

// uploadManifestFile serializes fl and uploads it to folder/name.
func uploadManifestFile(ctx context.Context, b backend.Backend, folder, name string, fl *manifest.FileList) error {
	data, err := fl.GenerateManifest()
	if err != nil {
		return err
	}
	return b.Upload(ctx, folder+"/"+name, bytes.NewReader(data))
}

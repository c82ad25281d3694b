package netclient

import (
	"net/http"
	"path"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/hashicorp/go-hclog"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/auth"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/pixilock"
	"github.com/pkg/errors"
)

const (
	MediaTypeTarBz2 types.MediaType = "application/vnd.conda.package.v1"
	MediaTypeConda  types.MediaType = "application/vnd.conda.package.v2"
)

var ErrNotOCIPackage = errors.New("oci url does not name a conda package")

// ociBackend fetches conda packages that a channel mirror stores as OCI
// artifacts. oci://<registry>/<repo>/<subdir>/<name>-<version>-<build>.conda
// maps to the image <registry>/<repo>/<subdir>/<name>:<version>-<build>,
// whose layer with the matching media type is the archive.
type ociBackend struct {
	next    http.RoundTripper
	storage *auth.Storage
	L       hclog.Logger
}

var tagEscapes = strings.NewReplacer(
	"+", "__p__",
	"!", "__e__",
	"=", "__eq__",
)

// OCIReference converts an oci:// package URL into an image reference and
// the media type of the layer holding the archive.
func OCIReference(registry, p string) (string, types.MediaType, error) {
	dir, file := path.Split(strings.TrimPrefix(p, "/"))

	pkgName, version, build, ok := pixilock.SplitArchiveName(file)
	if !ok {
		return "", "", errors.Wrapf(ErrNotOCIPackage, "%s", file)
	}

	mt := MediaTypeConda
	if strings.HasSuffix(file, ".tar.bz2") {
		mt = MediaTypeTarBz2
	}

	if strings.HasPrefix(pkgName, "_") {
		pkgName = "zzz" + pkgName
	}

	tag := tagEscapes.Replace(version + "-" + build)

	return registry + "/" + dir + pkgName + ":" + tag, mt, nil
}

func (o *ociBackend) authenticator(registry string) authn.Authenticator {
	a, ok := o.storage.Get(registry)
	if !ok {
		return authn.Anonymous
	}

	switch a := a.(type) {
	case auth.BearerToken:
		return &authn.Bearer{Token: string(a)}
	case auth.BasicHTTP:
		return &authn.Basic{Username: a.Username, Password: a.Password}
	default:
		return authn.Anonymous
	}
}

func (o *ociBackend) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return syntheticResponse(req, http.StatusMethodNotAllowed, nil, 0), nil
	}

	target, mt, err := OCIReference(req.URL.Host, req.URL.Path)
	if err != nil {
		return syntheticResponse(req, http.StatusNotFound, nil, 0), nil
	}

	ref, err := name.ParseReference(target)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid oci reference for %s", req.URL)
	}

	o.L.Debug("fetching package from OCI registry", "url", req.URL.String(), "ref", ref.String())

	img, err := remote.Image(ref,
		remote.WithContext(req.Context()),
		remote.WithTransport(o.next),
		remote.WithAuth(o.authenticator(ref.Context().RegistryStr())),
	)
	if err != nil {
		var terr *transport.Error
		if errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound {
			return syntheticResponse(req, http.StatusNotFound, nil, 0), nil
		}

		return nil, errors.Wrapf(err, "fetching %s", ref)
	}

	man, err := img.Manifest()
	if err != nil {
		return nil, errors.Wrapf(err, "reading manifest of %s", ref)
	}

	for _, desc := range man.Layers {
		if desc.MediaType != mt {
			continue
		}

		if req.Method == http.MethodHead {
			return syntheticResponse(req, http.StatusOK, nil, desc.Size), nil
		}

		layer, err := img.LayerByDigest(desc.Digest)
		if err != nil {
			return nil, errors.Wrapf(err, "locating layer %s of %s", desc.Digest, ref)
		}

		rc, err := layer.Compressed()
		if err != nil {
			return nil, errors.Wrapf(err, "downloading layer %s of %s", desc.Digest, ref)
		}

		return syntheticResponse(req, http.StatusOK, rc, desc.Size), nil
	}

	o.L.Warn("image has no conda package layer", "ref", ref.String(), "media-type", string(mt))

	return syntheticResponse(req, http.StatusNotFound, nil, 0), nil
}

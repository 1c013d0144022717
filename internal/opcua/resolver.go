package opcua

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/awcullen/opcua/client"
	"github.com/awcullen/opcua/ua"
	"github.com/cenkalti/backoff/v5"

	"github.com/fbflow/fbflow/errs"
	"github.com/fbflow/fbflow/internal/observability"
)

const (
	resolverDialAttempts    = 5
	resolverMaxDialInterval = 2 * time.Second
)

// FolderCreator materialises a missing browse-path segment as a folder node.
type FolderCreator interface {
	CreateFolder(parent ua.NodeID, name ua.QualifiedName) (ua.NodeID, error)
}

// translateFunc issues one TranslateBrowsePathsToNodeIds service call.
type translateFunc func(ctx context.Context, req *ua.TranslateBrowsePathsToNodeIDsRequest) (*ua.TranslateBrowsePathsToNodeIDsResponse, error)

// PathResolver resolves slash-delimited browse paths rooted at /Objects to
// node ids, optionally creating missing intermediate folders. Resolution goes
// through a loopback client session against the runtime's own server, so the
// answer reflects exactly what external clients observe.
//
// A single mutex serialises resolve-or-create sequences; without it two
// callers could race to create siblings with the same browse name.
type PathResolver struct {
	endpoint  string
	folders   FolderCreator
	log       observability.Logger
	mu        sync.Mutex
	translate translateFunc
}

// NewPathResolver builds a resolver that dials endpoint for each resolution.
func NewPathResolver(endpoint string, folders FolderCreator, log observability.Logger) *PathResolver {
	if log == nil {
		log = observability.Noop()
	}
	r := &PathResolver{
		endpoint: endpoint,
		folders:  folders,
		log:      log,
	}
	r.translate = r.dialAndTranslate
	return r
}

// Resolve returns the node id of the deepest segment of path. When
// createIfNotFound is set, missing segments below the deepest resolved
// ancestor are created as folder nodes.
func (r *PathResolver) Resolve(ctx context.Context, path string, createIfNotFound bool) (ua.NodeID, error) {
	names, err := r.parse(path)
	if err != nil {
		r.log.Error("browse path rejected",
			observability.String("path", path),
			observability.Err(err))
		return nil, err
	}
	if len(names) == 0 {
		return ua.ObjectIDObjectsFolder, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	resp, err := r.translate(ctx, buildTranslateRequest(names))
	if err != nil {
		r.log.Error("translate browse paths failed",
			observability.String("path", path),
			observability.Err(err))
		return nil, errs.New("opcua/resolver", errs.CodeUnavailable,
			errs.WithMessagef("translate browse paths for %q", path), errs.WithCause(err))
	}
	if code := resp.ResponseHeader.ServiceResult; code != ua.Good {
		r.log.Error("translate browse paths service error",
			observability.String("path", path),
			observability.String("status", statusHex(code)))
		return nil, errs.New("opcua/resolver", errs.CodeService,
			errs.WithMessagef("translate browse paths for %q", path),
			errs.WithStatus(uint32(code)))
	}
	if len(resp.Results) != len(names) {
		r.log.Error("translate browse paths result count mismatch",
			observability.String("path", path),
			observability.Int("results", len(resp.Results)),
			observability.Int("expected", len(names)))
		return nil, errs.New("opcua/resolver", errs.CodeService,
			errs.WithMessagef("expected %d results for %q, got %d", len(names), path, len(resp.Results)))
	}

	if target, ok := r.firstTarget(resp.Results[len(names)-1], path); ok {
		return target, nil
	}
	if !createIfNotFound {
		return nil, errs.New("opcua/resolver", errs.CodeNotFound,
			errs.WithMessagef("browse path %q does not resolve", path))
	}

	// Walk up from the deepest missing segment to the first existing
	// ancestor, then create folders on the way back down.
	parent := ua.NodeID(ua.ObjectIDObjectsFolder)
	firstMissing := 0
	for i := len(names) - 2; i >= 0; i-- {
		target, ok := r.firstTarget(resp.Results[i], path)
		if !ok {
			continue
		}
		parent = target
		firstMissing = i + 1
		break
	}
	for j := firstMissing; j < len(names); j++ {
		created, err := r.folders.CreateFolder(parent, names[j])
		if err != nil {
			r.log.Error("creating browse path segment failed",
				observability.String("path", path),
				observability.String("segment", names[j].Name),
				observability.Err(err))
			return nil, err
		}
		parent = created
	}
	return parent, nil
}

// firstTarget extracts the target node of a good result, warning when the
// path is ambiguous. The first target wins.
func (r *PathResolver) firstTarget(res ua.BrowsePathResult, path string) (ua.NodeID, bool) {
	if res.StatusCode != ua.Good || len(res.Targets) == 0 {
		return nil, false
	}
	if len(res.Targets) > 1 {
		r.log.Warn("browse path has multiple targets, taking the first",
			observability.String("path", path),
			observability.Int("targets", len(res.Targets)))
	}
	return res.Targets[0].TargetID.NodeID, true
}

// parse normalises the path and splits it into qualified names below the
// Objects folder. Segments may carry a namespace index prefix as "NS:name";
// the default namespace index is 0.
func (r *PathResolver) parse(path string) ([]ua.QualifiedName, error) {
	trimmed := strings.TrimRight(path, "/")
	trimmed = strings.TrimPrefix(trimmed, "/")
	if trimmed == "" {
		return nil, errs.New("opcua/resolver", errs.CodePathMalformed,
			errs.WithMessage("empty browse path"))
	}

	segments := strings.Split(trimmed, "/")
	if segments[0] != "Objects" && segments[0] != "0:Objects" {
		return nil, errs.New("opcua/resolver", errs.CodePathMalformed,
			errs.WithMessagef("browse path %q has to start with /Objects", path))
	}

	names := make([]ua.QualifiedName, 0, len(segments)-1)
	for _, seg := range segments[1:] {
		if seg == "" {
			return nil, errs.New("opcua/resolver", errs.CodePathMalformed,
				errs.WithMessagef("browse path %q contains an empty segment", path))
		}
		ns := uint16(0)
		name := seg
		if idx := strings.IndexByte(seg, ':'); idx > 0 {
			parsed, err := strconv.ParseUint(seg[:idx], 10, 16)
			if err != nil {
				return nil, errs.New("opcua/resolver", errs.CodePathMalformed,
					errs.WithMessagef("segment %q has a malformed namespace index", seg), errs.WithCause(err))
			}
			ns = uint16(parsed)
			name = seg[idx+1:]
			if name == "" {
				return nil, errs.New("opcua/resolver", errs.CodePathMalformed,
					errs.WithMessagef("segment %q has no name after the namespace index", seg))
			}
		}
		names = append(names, ua.QualifiedName{NamespaceIndex: ns, Name: name})
	}
	return names, nil
}

// buildTranslateRequest batches one browse path per depth, each starting at
// the Objects folder, so a single service call answers every prefix.
func buildTranslateRequest(names []ua.QualifiedName) *ua.TranslateBrowsePathsToNodeIDsRequest {
	paths := make([]ua.BrowsePath, len(names))
	for i := range names {
		elements := make([]ua.RelativePathElement, i+1)
		for j := 0; j <= i; j++ {
			elements[j] = ua.RelativePathElement{
				ReferenceTypeID: ua.ReferenceTypeIDHierarchicalReferences,
				IsInverse:       false,
				IncludeSubtypes: true,
				TargetName:      names[j],
			}
		}
		paths[i] = ua.BrowsePath{
			StartingNode: ua.ObjectIDObjectsFolder,
			RelativePath: ua.RelativePath{Elements: elements},
		}
	}
	return &ua.TranslateBrowsePathsToNodeIDsRequest{BrowsePaths: paths}
}

// dialAndTranslate opens a loopback session, issues the request, and closes
// the session again. The server may still be warming up when the first
// resolution runs, so dialing retries with exponential backoff.
func (r *PathResolver) dialAndTranslate(ctx context.Context, req *ua.TranslateBrowsePathsToNodeIDsRequest) (*ua.TranslateBrowsePathsToNodeIDsResponse, error) {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = resolverMaxDialInterval

	var ch *client.Client
	var err error
	for attempt := 0; attempt < resolverDialAttempts; attempt++ {
		ch, err = client.Dial(ctx, r.endpoint, client.WithInsecureSkipVerify())
		if err == nil {
			break
		}
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = resolverMaxDialInterval
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := ch.Close(ctx); closeErr != nil {
			r.log.Debug("closing loopback session failed", observability.Err(closeErr))
		}
	}()

	return ch.TranslateBrowsePathsToNodeIDs(ctx, req)
}

func statusHex(code ua.StatusCode) string {
	return "0x" + strconv.FormatUint(uint64(uint32(code)), 16)
}

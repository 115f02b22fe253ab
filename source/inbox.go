package source

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/logger"
	"github.com/teranos/pegabatch/tracker"
)

// Requests is the slice of the tracker the inbox needs.
type Requests interface {
	Get(ctx context.Context, id string) (*tracker.Request, error)
	Create(ctx context.Context, r *tracker.Request) error
	AttachFile(ctx context.Context, id, inputFile string) error
	SetError(ctx context.Context, id, text string) error
}

// Inbox moves uploads named <jobId>_<name> from Dir into WorkDir.
type Inbox struct {
	Dir      string
	WorkDir  string
	Ignore   *Ignore
	Requests Requests
	Logger   *zap.SugaredLogger
}

// Intake is the fate of one inbox entry.
type Intake struct {
	JobID string
	Path  string // accepted file in the work dir, empty when rejected
	Error string // user-facing rejection message
}

// Accepted reports whether the upload produced a file to analyse.
func (in Intake) Accepted() bool {
	return in.Path != ""
}

// Collect processes every file currently in the inbox.
func (ib *Inbox) Collect(ctx context.Context) ([]Intake, error) {
	log := ib.Logger
	if log == nil {
		log = logger.AddIXSymbol(logger.ComponentLogger("source.inbox"))
	}
	if err := os.MkdirAll(ib.WorkDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create work dir %s", ib.WorkDir)
	}

	entries, err := os.ReadDir(ib.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read inbox %s", ib.Dir)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []Intake
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if e.IsDir() || strings.HasSuffix(e.Name(), partSuffix) || ib.Ignore.Match(e.Name()) {
			continue
		}
		in, err := ib.take(ctx, e.Name())
		if err != nil {
			return out, err
		}
		if in.Accepted() {
			log.Infow("Upload accepted", logger.FieldJobID, in.JobID, logger.FieldFile, filepath.Base(in.Path))
		} else {
			log.Warnw("Upload rejected", logger.FieldJobID, in.JobID, logger.FieldFile, e.Name(), logger.FieldError, in.Error)
		}
		out = append(out, in)
	}
	return out, nil
}

func (ib *Inbox) take(ctx context.Context, name string) (Intake, error) {
	src := filepath.Join(ib.Dir, name)
	jobID, base := splitName(name)
	in := Intake{JobID: jobID}

	switch {
	case IsArchive(name):
		dst, err := ib.expand(src, jobID)
		if err != nil {
			return in, err
		}
		if dst == "" {
			in.Error = MsgEmptyArchive
		}
		in.Path = dst
		if err := os.Remove(src); err != nil {
			return in, errors.Wrapf(err, "remove archive %s", src)
		}
	case IsInvalidFile(name):
		in.Error = MsgInvalidExtension
		if err := os.Remove(src); err != nil {
			return in, errors.Wrapf(err, "remove invalid upload %s", src)
		}
	default:
		dst := filepath.Join(ib.WorkDir, jobID+"_"+base)
		if err := move(src, dst); err != nil {
			return in, err
		}
		in.Path = dst
	}

	return in, ib.record(ctx, in)
}

// record makes sure the tracker knows about the upload's outcome.
func (ib *Inbox) record(ctx context.Context, in Intake) error {
	if ib.Requests == nil {
		return nil
	}
	_, err := ib.Requests.Get(ctx, in.JobID)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		if err := ib.Requests.Create(ctx, &tracker.Request{ID: in.JobID, InputFile: in.Path}); err != nil {
			return err
		}
	case err != nil:
		return err
	case in.Accepted():
		if err := ib.Requests.AttachFile(ctx, in.JobID, in.Path); err != nil {
			return err
		}
	}
	if !in.Accepted() {
		return ib.Requests.SetError(ctx, in.JobID, in.Error)
	}
	return nil
}

// expand extracts the first valid spreadsheet of a zip into the work dir and
// returns its path, or "" when the archive has none.
func (ib *Inbox) expand(src, jobID string) (string, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		// Unreadable archives are rejected like empty ones
		return "", nil
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || IsInvalidFile(f.Name) || ib.Ignore.Match(f.Name) {
			continue
		}
		dst := filepath.Join(ib.WorkDir, jobID+"_"+path.Base(filepath.ToSlash(f.Name)))
		if err := extractEntry(f, dst); err != nil {
			return "", err
		}
		return dst, nil
	}
	return "", nil
}

func extractEntry(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return errors.Wrapf(err, "open zip entry %s", f.Name)
	}
	defer rc.Close()
	return writeFile(dst, rc)
}

// splitName separates the job id prefix from the upload name. Uploads
// without a prefix are assigned a fresh id.
func splitName(name string) (jobID, base string) {
	if i := strings.IndexByte(name, '_'); i > 0 && i < len(name)-1 {
		return name[:i], name[i+1:]
	}
	return uuid.NewString(), name
}

// move renames src to dst, copying when they live on different filesystems.
func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	f, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open upload %s", src)
	}
	defer f.Close()
	if err := writeFile(dst, f); err != nil {
		return err
	}
	return errors.Wrapf(os.Remove(src), "remove upload %s", src)
}

// partSuffix marks files still being written; intake skips them.
const partSuffix = ".part"

// Drop copies src into the inbox as <jobID>_<base name>, so the next
// Collect picks it up. It returns the inbox path.
func Drop(src, dir, jobID string) (string, error) {
	if strings.Contains(jobID, "_") {
		return "", errors.Wrapf(errors.ErrInvalidRequest, "request id %q must not contain '_'", jobID)
	}
	f, err := os.Open(src)
	if err != nil {
		return "", errors.Wrapf(err, "open %s", src)
	}
	defer f.Close()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create inbox %s", dir)
	}
	dst := filepath.Join(dir, jobID+"_"+filepath.Base(src))
	if err := writeFile(dst, f); err != nil {
		return "", err
	}
	return dst, nil
}

func writeFile(dst string, r io.Reader) error {
	tmp := dst + partSuffix
	out, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "create %s", tmp)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "write %s", dst)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "close %s", dst)
	}
	return errors.Wrapf(os.Rename(tmp, dst), "finalize %s", dst)
}

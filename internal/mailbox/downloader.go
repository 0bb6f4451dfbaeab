package mailbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nhle/mailkeep/internal/session"
)

// Exporter mirrors downloaded messages to remote blob storage.
type Exporter interface {
	Put(key string, data []byte) error
}

// DownloadRecord reports one exported mailbox.
type DownloadRecord struct {
	Mailbox string
	Dir     string
	Count   int
}

// Downloader writes message bodies to local files, mirroring the remote
// hierarchy as directories.
type Downloader struct {
	sess     Session
	catalog  *Catalog
	exporter Exporter // optional mirror, nil disables
	log      zerolog.Logger
}

func NewDownloader(sess Session, exporter Exporter, log zerolog.Logger) *Downloader {
	return &Downloader{
		sess:     sess,
		catalog:  NewCatalog(sess),
		exporter: exporter,
		log:      log,
	}
}

// Download writes every message at or below root into dest. Each mailbox
// maps to a directory, its delimiter replaced by the path separator; each
// message lands verbatim in <unix-seconds>.mail named after its Date
// header. Unlike inspection, a missing or unparsable Date is fatal here,
// as is any fetch or filesystem failure.
func (d *Downloader) Download(root, dest string) ([]DownloadRecord, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, &FilesystemError{Path: dest, Message: err.Error()}
	}

	nodes, err := d.catalog.Subtree(root)
	if err != nil {
		return nil, err
	}

	var records []DownloadRecord
	for _, node := range nodes {
		h, err := d.sess.Select(node.DisplayName)
		if err != nil {
			return records, err
		}
		if h.NumMessages == 0 {
			continue
		}

		dir := filepath.Join(dest, localDir(node))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return records, &FilesystemError{Path: dir, Message: err.Error()}
		}

		ids, err := d.sess.SearchAll(h)
		if err != nil {
			return records, err
		}

		d.log.Info().
			Str("mailbox", node.DisplayName).
			Int("mails", len(ids)).
			Str("dir", dir).
			Msg("downloading mailbox")

		for _, id := range ids {
			if err := d.downloadMessage(h, id, dir, node); err != nil {
				return records, err
			}
		}

		records = append(records, DownloadRecord{
			Mailbox: node.DisplayName,
			Dir:     dir,
			Count:   len(ids),
		})
	}

	return records, nil
}

func (d *Downloader) downloadMessage(h *session.MailboxHandle, id uint32, dir string, node MailboxNode) error {
	headers, err := d.sess.PeekHeaders(h, []uint32{id})
	if err != nil {
		return err
	}
	raw, ok := headers[id]
	if !ok {
		return &session.ProtocolError{
			Op:      "fetch",
			Mailbox: node.DisplayName,
			Message: fmt.Sprintf("no header returned for message %d", id),
		}
	}
	sent, err := dateFromHeader(raw)
	if err != nil {
		return fmt.Errorf("naming message %d in %s: %w", id, node.DisplayName, err)
	}

	body, err := d.sess.FetchBody(h, id)
	if err != nil {
		return err
	}

	name := strconv.FormatInt(sent.Unix(), 10) + ".mail"
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return &FilesystemError{Path: path, Message: err.Error()}
	}
	d.log.Debug().Str("file", path).Msg("wrote mail")

	if d.exporter != nil {
		key := mirrorKey(node, name)
		if err := d.exporter.Put(key, body); err != nil {
			return &FilesystemError{Path: key, Message: fmt.Sprintf("mirror upload: %v", err)}
		}
	}
	return nil
}

// localDir maps a mailbox path to a relative directory, one path element
// per hierarchy level.
func localDir(node MailboxNode) string {
	return strings.ReplaceAll(node.DisplayName, string(node.Delim), string(os.PathSeparator))
}

// mirrorKey builds the forward-slashed object key for a mirrored file.
func mirrorKey(node MailboxNode, name string) string {
	return strings.ReplaceAll(node.DisplayName, string(node.Delim), "/") + "/" + name
}

package roster

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
)

// Source is a remote address book shared by the people who maintain a
// group's contacts, typically a CardDAV export or a share link.
type Source struct {
	URL      string
	User     string
	Password string
}

// credentials returns the explicit user and password, falling back to the
// userinfo part of the URL.
func (s Source) credentials(u *url.URL) (string, string) {
	if s.User != "" || s.Password != "" || u.User == nil {
		return s.User, s.Password
	}
	pass, _ := u.User.Password()
	return u.User.Username(), pass
}

// redact drops userinfo and query from u. Share links carry their tokens
// there.
func redact(u *url.URL) string {
	return u.Scheme + "://" + u.Host + u.Path
}

// AddressBookFetcher opens a remote address book for import.
type AddressBookFetcher interface {
	Open(ctx context.Context, src Source) (io.ReadCloser, error)
}

// HTTPFetcher implements AddressBookFetcher over HTTP(S) with optional
// Basic Auth.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher creates a fetcher with the default timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client: &http.Client{
			Timeout: config.HTTPTimeout,
		},
	}
}

// Open downloads src. The body is capped at config.MaxHTTPResponseSize.
// An HTML answer is refused: share services serve their login page with
// 200 when the link or the credentials are wrong.
func (f *HTTPFetcher) Open(ctx context.Context, src Source) (io.ReadCloser, error) {
	u, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrInvalidURL, err)
	}
	if u.Scheme != config.SchemeHTTP && u.Scheme != config.SchemeHTTPS {
		return nil, fmt.Errorf("%s: %s", config.ErrProtocol, u.Scheme)
	}

	log := slog.With(
		slog.String(config.LogKeyComponent, config.CompFetcher),
		slog.String(config.LogKeyURL, redact(u)),
	)
	log.DebugContext(ctx, config.MsgFetchStart)

	user, pass := src.credentials(u)
	u.User = nil
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrFetch, err)
	}
	req.Header.Set(config.HeaderUserAgent, config.UserAgent)
	req.Header.Set(config.HeaderAccept, config.MimeVCard)
	if user != "" || pass != "" {
		req.SetBasicAuth(user, pass)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrFetch, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		log.WarnContext(ctx, config.MsgFetchStatus, slog.Int(config.LogKeyStatus, resp.StatusCode))
		return nil, fmt.Errorf("%s: %s", config.ErrFetchStatus, resp.Status)
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get(config.HeaderContentType)); mt == config.MediaTypeHTML {
		_ = resp.Body.Close()
		log.WarnContext(ctx, config.MsgFetchHTML)
		return nil, fmt.Errorf("%s: %s", config.ErrVCardParse, config.ErrFetchHTML)
	}

	return &limitedReadCloser{
		Reader: io.LimitReader(resp.Body, config.MaxHTTPResponseSize),
		Closer: resp.Body,
	}, nil
}

type limitedReadCloser struct {
	io.Reader
	io.Closer
}

// ImportFrom downloads src and merges its contacts into the roster for
// target, the same way Import does for a local file.
func (s *Store) ImportFrom(ctx context.Context, f AddressBookFetcher, src Source, target Target) (ImportStats, error) {
	rc, err := f.Open(ctx, src)
	if err != nil {
		return ImportStats{}, err
	}
	defer func() { _ = rc.Close() }()

	stats, err := s.Import(ctx, rc, target)
	if err != nil {
		return stats, err
	}
	if u, perr := url.Parse(src.URL); perr == nil {
		slog.InfoContext(ctx, config.MsgImportRemote,
			config.LogKeyComponent, config.CompImport,
			config.LogKeyURL, redact(u),
			config.LogKeyCount, stats.Cards,
		)
	}
	return stats, nil
}

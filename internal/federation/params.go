package federation

import (
	"net/url"
	"strings"
	"sync"
)

// InviteParam is the deep-link query parameter carrying an invite code.
const InviteParam = "fedimint_invite"

// ParamSource exposes the parameters of the link the application was
// opened with.
type ParamSource interface {
	Get(key string) string
	Clear(key string)
}

// LinkParams is a ParamSource backed by a URL such as
// fedwallet://settings/federations?fedimint_invite=fed1...
type LinkParams struct {
	mu  sync.Mutex
	url *url.URL
}

// ParseLink parses a deep link. A bare query string ("fedimint_invite=...")
// is accepted too.
func ParseLink(link string) (*LinkParams, error) {
	link = strings.TrimSpace(link)
	if !strings.Contains(link, "://") && !strings.HasPrefix(link, "?") && strings.Contains(link, "=") {
		link = "?" + link
	}
	u, err := url.Parse(link)
	if err != nil {
		return nil, err
	}
	return &LinkParams{url: u}, nil
}

// Get implements ParamSource.
func (p *LinkParams) Get(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url.Query().Get(key)
}

// Clear implements ParamSource.
func (p *LinkParams) Clear(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.url.Query()
	q.Del(key)
	p.url.RawQuery = q.Encode()
}

// String returns the link with cleared parameters removed.
func (p *LinkParams) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url.String()
}

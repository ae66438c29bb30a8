package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tola-labs/cfusage/domain/org"
	"github.com/tola-labs/cfusage/domain/usage"
)

// maxOrgPages bounds pagination in case an upstream keeps returning next links.
const maxOrgPages = 500

// orgPage is one page of GET /v3/organizations.
type orgPage struct {
	Pagination struct {
		TotalResults int `json:"total_results"`
		Next         *struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"pagination"`
	Resources *[]struct {
		GUID string `json:"guid"`
		Name string `json:"name"`
	} `json:"resources"`
}

// ListOrganizations pages through the cloud controller's organizations and
// drops "system" and every configured exclusion.
func (f *Fetcher) ListOrganizations(ctx context.Context, foundation string) ([]org.Organization, error) {
	fc, err := f.lookup(foundation)
	if err != nil {
		return nil, err
	}
	if fc.api == nil {
		return nil, &usage.ConfigurationError{Foundation: foundation, Reason: "no api_url"}
	}

	query := url.Values{}
	query.Set("per_page", strconv.Itoa(f.pageSize))
	query.Set("order_by", "name")
	next := fc.api.BaseURL() + "/v3/organizations?" + query.Encode()

	var all []org.Organization
	for page := 0; next != ""; page++ {
		if page >= maxOrgPages {
			return nil, &usage.ParseError{Kind: "organizations", Err: fmt.Errorf("more than %d pages", maxOrgPages)}
		}

		body, err := fc.api.GetURL(ctx, "organizations", next)
		if err != nil {
			return nil, err
		}

		var p orgPage
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, &usage.ParseError{Kind: "organizations", Err: err}
		}
		if p.Resources == nil {
			return nil, &usage.ParseError{Kind: "organizations", Err: fmt.Errorf("missing resources list")}
		}
		for _, r := range *p.Resources {
			all = append(all, org.Organization{GUID: r.GUID, Name: r.Name})
		}

		next = ""
		if p.Pagination.Next != nil && p.Pagination.Next.Href != "" {
			next, err = resolveNext(fc.api.BaseURL(), p.Pagination.Next.Href)
			if err != nil {
				return nil, &usage.ParseError{Kind: "organizations", Err: err}
			}
		}
	}

	return org.Filter(all, *f.excluded.Load()), nil
}

// resolveNext resolves a pagination link against base and rejects links to
// another scheme or host, which would otherwise receive the credentials.
func resolveNext(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u, err := b.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse next link: %w", err)
	}
	if u.Scheme != b.Scheme || u.Host != b.Host {
		return "", fmt.Errorf("next link %s leaves %s://%s", redact(u.String()), b.Scheme, b.Host)
	}
	return u.String(), nil
}

package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/starford/opscore/internal/models"
)

// minNameLen is the shortest client name considered for subject matching.
const minNameLen = 4

type namedClient struct {
	lower    string
	clientID string
}

// clientMatcher resolves a communication to a client.
type clientMatcher struct {
	byEmail      map[string]string
	byDomain     map[string]string
	clientNames  []namedClient
	invoiceNames []namedClient
}

func newClientMatcher(ids []models.ClientIdentity, clients map[string]models.Client, invoiceNames []namedClient) *clientMatcher {
	m := &clientMatcher{
		byEmail:  make(map[string]string),
		byDomain: make(map[string]string),
	}
	for _, ci := range ids {
		v := strings.ToLower(strings.TrimSpace(ci.Value))
		switch ci.Kind {
		case "email":
			m.byEmail[v] = ci.ClientID
		case "domain":
			m.byDomain[v] = ci.ClientID
		}
	}
	for _, id := range sortedKeys(clients) {
		m.clientNames = append(m.clientNames, namedClient{lower: strings.ToLower(strings.TrimSpace(clients[id].Name)), clientID: id})
	}
	m.clientNames = longestFirst(m.clientNames)
	m.invoiceNames = longestFirst(invoiceNames)
	return m
}

// longestFirst drops short names and orders the rest so the first substring hit is the
// longest match. Ties break on name then client ID.
func longestFirst(names []namedClient) []namedClient {
	out := make([]namedClient, 0, len(names))
	for _, n := range names {
		if utf8.RuneCountInString(n.lower) >= minNameLen {
			out = append(out, n)
		}
	}
	slices.SortStableFunc(out, func(a, b namedClient) int {
		if la, lb := utf8.RuneCountInString(a.lower), utf8.RuneCountInString(b.lower); la != lb {
			return lb - la
		}
		if c := strings.Compare(a.lower, b.lower); c != 0 {
			return c
		}
		return strings.Compare(a.clientID, b.clientID)
	})
	return out
}

// match tries identity lookup, then client names in the subject, then invoice client names.
func (m *clientMatcher) match(address string, domain *string, subject string) *string {
	if address != "" {
		if id, ok := m.byEmail[strings.ToLower(strings.TrimSpace(address))]; ok {
			return &id
		}
	}
	if domain != nil {
		if id, ok := m.byDomain[strings.ToLower(*domain)]; ok {
			return &id
		}
	}
	lowerSubject := strings.ToLower(subject)
	if lowerSubject == "" {
		return nil
	}
	for _, names := range [][]namedClient{m.clientNames, m.invoiceNames} {
		for _, n := range names {
			if strings.Contains(lowerSubject, n.lower) {
				id := n.clientID
				return &id
			}
		}
	}
	return nil
}

// NormalizeCommunications derives from_domain, client_id and link_status.
func (n *Normalizer) NormalizeCommunications(ctx context.Context) (PassResult, error) {
	var res PassResult
	comms, skipped, err := n.db.Communications(ctx)
	if err != nil {
		return res, fmt.Errorf("normalize communications: %w", err)
	}
	res.Skipped += n.reportSkipped("communications", skipped)
	ids, skipped, err := n.db.ClientIdentities(ctx)
	if err != nil {
		return res, fmt.Errorf("normalize communications: %w", err)
	}
	n.reportSkipped("communications", skipped)
	clients, skipped, err := n.db.Clients(ctx)
	if err != nil {
		return res, fmt.Errorf("normalize communications: %w", err)
	}
	n.reportSkipped("communications", skipped)
	invNames, err := n.db.InvoiceClientNames(ctx)
	if err != nil {
		return res, fmt.Errorf("normalize communications: %w", err)
	}
	named := make([]namedClient, 0, len(invNames))
	for _, in := range invNames {
		named = append(named, namedClient{lower: strings.ToLower(strings.TrimSpace(in.Name)), clientID: in.ClientID})
	}
	m := newClientMatcher(ids, clients, named)

	for _, c := range comms {
		domain := c.FromDomain
		if domain == nil || *domain == "" {
			domain = DomainOf(c.FromAddress)
		}
		clientID := m.match(c.FromAddress, domain, c.Subject)
		status := models.CommUnlinked
		if clientID != nil {
			status = models.CommLinked
		}
		if sameRef(domain, c.FromDomain) && sameRef(clientID, c.ClientID) && status == c.LinkStatus {
			continue
		}
		if err := n.db.UpdateCommunicationLink(ctx, c.ID, domain, clientID, status); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			n.logger.Warn("normalize: communication update failed", slog.String("communication_id", c.ID), slog.String("error", err.Error()))
			res.Skipped++
			continue
		}
		res.Changed++
	}
	return res, nil
}

// DomainOf returns the lowercased domain of an email address, or nil when there is none.
func DomainOf(address string) *string {
	at := strings.LastIndexByte(address, '@')
	if at < 0 || at == len(address)-1 {
		return nil
	}
	d := strings.ToLower(strings.TrimSpace(address[at+1:]))
	d = strings.TrimSuffix(d, ">")
	if d == "" {
		return nil
	}
	return &d
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

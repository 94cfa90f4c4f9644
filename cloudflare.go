package ddns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cloudflare/cloudflare-go"
	"github.com/sirupsen/logrus"
)

// errMalformedResponse marks Cloudflare responses that did not have the expected shape.
var errMalformedResponse = errors.New("malformed response")

func newCloudflareProvider(token string, opts ...cloudflare.Option) (cf *cloudflareProvider, err error) {
	cf = new(cloudflareProvider)
	cf.api, err = cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	cf.logger = discard
	return cf, err
}

// cloudflareProvider implements ddns.Provider.
//
// It should be constructed using newCloudflareProvider.
// Every failed call is logged here with its cause and returned to the caller.
type cloudflareProvider struct {
	api    *cloudflare.API
	logger logrus.FieldLogger
}

func (cf *cloudflareProvider) SetLogger(l logrus.FieldLogger) { cf.logger = l }

// ZoneName implements ddns.Provider.
func (cf *cloudflareProvider) ZoneName(ctx context.Context, zoneID string) (string, error) {
	zone, err := cf.api.ZoneDetails(ctx, zoneID)
	if err != nil {
		cf.logFailure("getting zone details", err)
		return "", fmt.Errorf("unable to get zone %s: %w", zoneID, err)
	}
	if zone.Name == "" {
		err := fmt.Errorf("%w: zone %s has no name", errMalformedResponse, zoneID)
		cf.logFailure("getting zone details", err)
		return "", err
	}
	return zone.Name, nil
}

// ListRecords implements ddns.Provider.
func (cf *cloudflareProvider) ListRecords(ctx context.Context, zoneID string) (map[string]Record, error) {
	cf.logger.Debugf("looking up A records for zone %s...", zoneID)
	records, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.ListDNSRecordsParams{
		Type: "A",
	})
	if err != nil {
		cf.logFailure("listing DNS records", err)
		return nil, fmt.Errorf("unable to list DNS records: %w", err)
	}
	cf.logger.Debugf("found %d existing records", len(records))

	found := make(map[string]Record, len(records))
	for _, r := range records {
		if r.Type != "A" {
			continue
		}
		rec, err := toRecord(r.ID, r.Name, r.Content)
		if err != nil {
			cf.logFailure("listing DNS records", err)
			return nil, err
		}
		found[rec.Name] = rec
	}
	return found, nil
}

type batchPatch struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type batchRequest struct {
	Patches []batchPatch `json:"patches"`
}

type batchResult struct {
	Patches *[]struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Type    string `json:"type"`
		Content string `json:"content"`
	} `json:"patches"`
}

// BatchPatch implements ddns.Provider.
//
// All records are sent in one request to the batch endpoint, which applies them atomically.
func (cf *cloudflareProvider) BatchPatch(ctx context.Context, zoneID string, records []Record) (map[string]Record, error) {
	body := batchRequest{Patches: make([]batchPatch, 0, len(records))}
	for _, r := range records {
		body.Patches = append(body.Patches, batchPatch{ID: r.ID, Content: r.Address.String()})
	}

	endpoint := fmt.Sprintf("/zones/%s/dns_records/batch", url.PathEscape(zoneID))
	res, err := cf.api.Raw(ctx, http.MethodPost, endpoint, body, http.Header{})
	if err != nil {
		cf.logFailure("updating DNS records", err)
		return nil, fmt.Errorf("unable to update DNS records: %w", err)
	}
	if !res.Success {
		err := fmt.Errorf("cloudflare returned non-success response: %+v", res.Errors)
		cf.logFailure("updating DNS records", err)
		return nil, err
	}

	var result batchResult
	if err := json.Unmarshal(res.Result, &result); err != nil || result.Patches == nil {
		err := fmt.Errorf("%w: patch response records is not a list: %s", errMalformedResponse, res.Result)
		cf.logFailure("updating DNS records", err)
		return nil, err
	}

	updated := make(map[string]Record, len(*result.Patches))
	for _, p := range *result.Patches {
		rec, err := toRecord(p.ID, p.Name, p.Content)
		if err != nil {
			cf.logFailure("updating DNS records", err)
			return nil, err
		}
		updated[rec.Name] = rec
	}
	return updated, nil
}

func toRecord(id, name, content string) (Record, error) {
	if id == "" || name == "" {
		return Record{}, fmt.Errorf("%w: record %q has no id or name", errMalformedResponse, name)
	}
	addr, err := ParseIPv4(content)
	if err != nil {
		return Record{}, fmt.Errorf("%w: record %s: %w", errMalformedResponse, name, err)
	}
	return Record{ID: id, Name: name, Address: addr}, nil
}

func (cf *cloudflareProvider) logFailure(op string, err error) {
	var urlErr *url.Error
	switch {
	case errors.As(err, &urlErr):
		cf.logger.Errorf("Failed to connect to Cloudflare while %s: %s", op, err)
	case errors.Is(err, errMalformedResponse):
		cf.logger.Errorf("Cloudflare returned an unexpected response while %s: %s", op, err)
	default:
		cf.logger.Errorf("Cloudflare request failed while %s: %s", op, err)
	}
}

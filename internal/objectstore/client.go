package objectstore

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// S3Client is the concrete Store backed by an S3-compatible bucket that
// requires SigV2 for object operations (PUT/GET/DELETE/COPY) and SigV4
// for metadata operations (HEAD/LIST) — the "vendor quirk" the target
// deployment exhibits. Addressing is always path-style.
type S3Client struct {
	endpoint  string
	bucket    string
	accessKey string
	secretKey string
	region    string
	http      *http.Client
}

// NewS3Client builds a client against endpoint/bucket using the given
// credentials. endpoint should not include the bucket name — path-style
// addressing appends it.
func NewS3Client(endpoint, bucket, accessKey, secretKey, region string) *S3Client {
	return &S3Client{
		endpoint:  strings.TrimRight(endpoint, "/"),
		bucket:    bucket,
		accessKey: accessKey,
		secretKey: secretKey,
		region:    region,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *S3Client) objectURL(key string) string {
	return c.endpoint + "/" + c.bucket + "/" + strings.TrimPrefix(key, "/")
}

func (c *S3Client) doV2(ctx context.Context, method, key string, body []byte, contentType string, extraHeaders map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.objectURL(key), reader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	signV2(req, c.bucket, c.accessKey, c.secretKey)
	return withRetry(ctx, c.http, req)
}

func (c *S3Client) doV4(ctx context.Context, method, key string, query url.Values) (*http.Response, error) {
	u := c.endpoint + "/" + c.bucket
	if key != "" {
		u += "/" + strings.TrimPrefix(key, "/")
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	signV4(req, c.bucket, c.accessKey, c.secretKey, c.region)
	return withRetry(ctx, c.http, req)
}

// withRetry applies bounded exponential backoff to transient (5xx or
// network) failures, per the resource model's upstream-retry policy.
func withRetry(ctx context.Context, hc *http.Client, req *http.Request) (*http.Response, error) {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}
		resp, err := hc.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("upstream status %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("object store unreachable after retries: %w", lastErr)
}

func (c *S3Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := c.doV2(ctx, http.MethodGet, key, nil, "", nil)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("get %s: status %d", key, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, true, nil
}

func (c *S3Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	resp, err := c.doV2(ctx, http.MethodPut, key, data, contentType, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("put %s: status %d", key, resp.StatusCode)
	}
	return nil
}

func (c *S3Client) Delete(ctx context.Context, key string) error {
	resp, err := c.doV2(ctx, http.MethodDelete, key, nil, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete %s: status %d", key, resp.StatusCode)
	}
	return nil
}

func (c *S3Client) DeleteMany(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := c.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (c *S3Client) Copy(ctx context.Context, srcKey, dstKey string) error {
	source := "/" + c.bucket + "/" + strings.TrimPrefix(srcKey, "/")
	resp, err := c.doV2(ctx, http.MethodPut, dstKey, nil, "", map[string]string{
		"x-amz-copy-source": source,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("copy %s -> %s: status %d", srcKey, dstKey, resp.StatusCode)
	}
	return nil
}

func (c *S3Client) Exists(ctx context.Context, key string) (bool, error) {
	resp, err := c.doV4(ctx, http.MethodHead, key, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("head %s: status %d", key, resp.StatusCode)
	}
	return true, nil
}

type listBucketResult struct {
	XMLName               xml.Name `xml:"ListBucketResult"`
	IsTruncated           bool     `xml:"IsTruncated"`
	NextContinuationToken string   `xml:"NextContinuationToken"`
	Contents              []struct {
		Key          string `xml:"Key"`
		Size         int64  `xml:"Size"`
		LastModified string `xml:"LastModified"`
	} `xml:"Contents"`
	CommonPrefixes []struct {
		Prefix string `xml:"Prefix"`
	} `xml:"CommonPrefixes"`
}

func (c *S3Client) List(ctx context.Context, prefix string) ([]ObjectMeta, error) {
	var out []ObjectMeta
	token := ""
	for {
		q := url.Values{"list-type": {"2"}, "prefix": {prefix}}
		if token != "" {
			q.Set("continuation-token", token)
		}
		resp, err := c.doV4(ctx, http.MethodGet, "", q)
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, err)
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("list %s: status %d", prefix, resp.StatusCode)
		}
		var parsed listBucketResult
		if err := xml.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("parsing list response for %s: %w", prefix, err)
		}
		for _, obj := range parsed.Contents {
			modified, _ := time.Parse(time.RFC3339, obj.LastModified)
			out = append(out, ObjectMeta{Key: obj.Key, Size: obj.Size, Modified: modified})
		}
		if !parsed.IsTruncated || parsed.NextContinuationToken == "" {
			break
		}
		token = parsed.NextContinuationToken
	}
	return out, nil
}

func (c *S3Client) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	q := url.Values{"list-type": {"2"}, "prefix": {prefix}, "delimiter": {"/"}}
	resp, err := c.doV4(ctx, http.MethodGet, "", q)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("listing prefixes under %s: %w", prefix, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list-prefixes %s: status %d", prefix, resp.StatusCode)
	}
	var parsed listBucketResult
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing list-prefixes response for %s: %w", prefix, err)
	}
	var out []string
	for _, p := range parsed.CommonPrefixes {
		out = append(out, p.Prefix)
	}
	return out, nil
}

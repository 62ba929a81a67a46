package objectstore

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// signV2 implements the legacy AWS Signature Version 2 header scheme,
// still required by the target's PUT/GET/DELETE/COPY family. Newer SDKs
// dropped SigV2 entirely, which is why this dispatch exists at all — see
// DESIGN.md.
func signV2(req *http.Request, bucket, accessKey, secretKey string) {
	date := time.Now().UTC().Format(http.TimeFormat)
	req.Header.Set("Date", date)

	canonicalResource := req.URL.Path
	if req.URL.RawQuery != "" {
		if v := req.URL.Query().Get("acl"); v != "" || strings.Contains(req.URL.RawQuery, "acl") {
			canonicalResource += "?acl"
		}
	}

	amzHeaders := canonicalizedAmzHeaders(req.Header)

	stringToSign := strings.Join([]string{
		req.Method,
		req.Header.Get("Content-MD5"),
		req.Header.Get("Content-Type"),
		date,
	}, "\n")
	if amzHeaders != "" {
		stringToSign += "\n" + amzHeaders
	}
	stringToSign += "\n" + canonicalResource

	mac := hmac.New(sha1.New, []byte(secretKey))
	mac.Write([]byte(stringToSign))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("Authorization", "AWS "+accessKey+":"+sig)
}

func canonicalizedAmzHeaders(h http.Header) string {
	var keys []string
	for k := range h {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "x-amz-") {
			keys = append(keys, lk)
		}
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		parts = append(parts, k+":"+strings.Join(h[http.CanonicalHeaderKey(k)], ","))
	}
	return strings.Join(parts, "\n")
}

// signV4 implements AWS Signature Version 4, used for the target's
// HEAD/LIST metadata operations only.
func signV4(req *http.Request, bucket, accessKey, secretKey, region string) {
	now := time.Now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")

	req.Header.Set("X-Amz-Date", amzDate)
	payloadHash := sha256Hex(nil)
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	if req.Host == "" {
		req.Host = req.URL.Host
	}

	canonicalHeaders, signedHeaders := canonicalHeaders(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL.Path),
		canonicalQuery(req.URL),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := dateStamp + "/" + region + "/s3/aws4_request"
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	signingKey := deriveV4Key(secretKey, dateStamp, region, "s3")
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	authHeader := "AWS4-HMAC-SHA256 Credential=" + accessKey + "/" + scope +
		", SignedHeaders=" + signedHeaders + ", Signature=" + signature
	req.Header.Set("Authorization", authHeader)
}

func canonicalURI(p string) string {
	if p == "" {
		return "/"
	}
	return (&url.URL{Path: p}).EscapedPath()
}

func canonicalQuery(u *url.URL) string {
	q := u.Query()
	var keys []string
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

func canonicalHeaders(req *http.Request) (headers, signed string) {
	h := map[string]string{
		"host": req.Host,
	}
	for k := range req.Header {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "x-amz-") {
			h[lk] = strings.Join(req.Header[k], ",")
		}
	}
	var keys []string
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var hb strings.Builder
	for _, k := range keys {
		hb.WriteString(k)
		hb.WriteString(":")
		hb.WriteString(strings.TrimSpace(h[k]))
		hb.WriteString("\n")
	}
	return hb.String(), strings.Join(keys, ";")
}

func deriveV4Key(secret, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), date)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, "aws4_request")
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

package scrape

import (
	"crypto/tls"
	"time"
)

// FetchMethod names the mechanism a tier uses to obtain HTML.
type FetchMethod string

// Supported fetch methods.
const (
	MethodClient FetchMethod = "client"
	MethodRender FetchMethod = "render"
	MethodNone   FetchMethod = "none"
)

// TerminalTier is the ordinal at which a source is marked protected for the
// cycle. No retries happen past it within the same run.
const TerminalTier = 5

// TLSProfile approximates a browser's TLS client fingerprint through the
// handshake parameters crypto/tls exposes.
type TLSProfile struct {
	MinVersion   uint16
	MaxVersion   uint16
	CipherSuites []uint16
	Curves       []tls.CurveID
}

// Config materializes the profile as a tls.Config for a transport.
func (p TLSProfile) Config() *tls.Config {
	return &tls.Config{
		MinVersion:       p.MinVersion,
		MaxVersion:       p.MaxVersion,
		CipherSuites:     append([]uint16(nil), p.CipherSuites...),
		CurvePreferences: append([]tls.CurveID(nil), p.Curves...),
	}
}

// ClientProfile is the header set and TLS fingerprint a lightweight tier
// presents.
type ClientProfile struct {
	Name      string
	UserAgent string
	Headers   map[string]string
	TLS       TLSProfile
}

// Tier is one rung of the protection-bypass escalation ladder.
type Tier struct {
	Ordinal    int
	Method     FetchMethod
	Profile    ClientProfile
	Stealth    int
	Timeout    time.Duration
	SettleWait time.Duration
}

var (
	chromeStable = ClientProfile{
		Name:      "chrome-stable",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language":           "en-US,en;q=0.9",
			"Sec-Ch-Ua":                 `"Not/A)Brand";v="8", "Chromium";v="126", "Google Chrome";v="126"`,
			"Sec-Ch-Ua-Mobile":          "?0",
			"Sec-Ch-Ua-Platform":        `"Windows"`,
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Upgrade-Insecure-Requests": "1",
		},
		TLS: TLSProfile{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			},
			Curves: []tls.CurveID{tls.X25519, tls.CurveP256, tls.CurveP384},
		},
	}

	chromeLegacy = ClientProfile{
		Name:      "chrome-legacy",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language":           "en-US,en;q=0.8",
			"Upgrade-Insecure-Requests": "1",
		},
		TLS: TLSProfile{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			},
			Curves: []tls.CurveID{tls.X25519, tls.CurveP256},
		},
	}

	firefoxStable = ClientProfile{
		Name:      "firefox-stable",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:127.0) Gecko/20100101 Firefox/127.0",
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.5",
			"DNT":             "1",
			"Sec-Fetch-Dest":  "document",
			"Sec-Fetch-Mode":  "navigate",
			"Sec-Fetch-Site":  "cross-site",
		},
		TLS: TLSProfile{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			},
			Curves: []tls.CurveID{tls.X25519, tls.CurveP256, tls.CurveP521},
		},
	}
)

// escalation is the static tier table consulted by the ladder. Ordinals are
// contiguous; escalation is always k -> k+1.
var escalation = []Tier{
	{Ordinal: 0, Method: MethodClient, Profile: chromeStable, Timeout: 10 * time.Second},
	{Ordinal: 1, Method: MethodClient, Profile: chromeLegacy, Timeout: 10 * time.Second},
	{Ordinal: 2, Method: MethodClient, Profile: firefoxStable, Timeout: 15 * time.Second},
	{Ordinal: 3, Method: MethodRender, Stealth: 1, Timeout: 45 * time.Second, SettleWait: 2 * time.Second},
	{Ordinal: 4, Method: MethodRender, Stealth: 2, Timeout: 75 * time.Second, SettleWait: 5 * time.Second},
	{Ordinal: TerminalTier, Method: MethodNone},
}

// Tiers returns a copy of the escalation table.
func Tiers() []Tier {
	return append([]Tier(nil), escalation...)
}

// TierAt returns the tier with the given ordinal, clamped to the table.
func TierAt(ordinal int) Tier {
	if ordinal < 0 {
		ordinal = 0
	}
	if ordinal >= len(escalation) {
		ordinal = len(escalation) - 1
	}
	return escalation[ordinal]
}

package cassandra

import (
	"archive/zip"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocql/gocql"
)

// Bundle is a parsed secure connect bundle: the metadata endpoint of a hosted
// cluster plus the mutual TLS material needed to reach it.
type Bundle struct {
	Host    string
	Port    int
	LocalDC string

	tls *tls.Config
}

type bundleConfig struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	LocalDC string `json:"localDC"`
}

type bundleMetadata struct {
	ContactInfo struct {
		LocalDC         string   `json:"local_dc"`
		SNIProxyAddress string   `json:"sni_proxy_address"`
		ContactPoints   []string `json:"contact_points"`
	} `json:"contact_info"`
}

var bundleFiles = []string{"config.json", "ca.crt", "cert", "key"}

// LoadBundle reads a secure connect bundle zip from disk. A relative path is
// resolved against the working directory, not the binary's location.
func LoadBundle(path string) (*Bundle, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer zr.Close()

	contents := make(map[string][]byte, len(bundleFiles))
	for _, f := range zr.File {
		for _, name := range bundleFiles {
			if f.Name != name {
				continue
			}
			data, err := readZipFile(f)
			if err != nil {
				return nil, fmt.Errorf("read bundle %s: %w", name, err)
			}
			contents[name] = data
		}
	}
	for _, name := range bundleFiles {
		if _, ok := contents[name]; !ok {
			return nil, fmt.Errorf("bundle is missing %s", name)
		}
	}

	var cfg bundleConfig
	if err := json.Unmarshal(contents["config.json"], &cfg); err != nil {
		return nil, fmt.Errorf("parse bundle config.json: %w", err)
	}
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, errors.New("bundle config.json has no metadata host and port")
	}

	cert, err := tls.X509KeyPair(contents["cert"], contents["key"])
	if err != nil {
		return nil, fmt.Errorf("load bundle client certificate: %w", err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(contents["ca.crt"]) {
		return nil, errors.New("bundle ca.crt holds no certificates")
	}

	return &Bundle{
		Host:    cfg.Host,
		Port:    cfg.Port,
		LocalDC: cfg.LocalDC,
		tls:     newBundleTLS(cert, roots, cfg.Host),
	}, nil
}

// newBundleTLS verifies peers against the bundle CA and the metadata host name
// rather than the SNI value, which carries a node host ID.
func newBundleTLS(cert tls.Certificate, roots *x509.CertPool, host string) *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		RootCAs:            roots,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, //nolint:gosec // replaced by VerifyConnection below
		VerifyConnection: func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return errors.New("peer presented no certificate")
			}
			intermediates := x509.NewCertPool()
			for _, c := range cs.PeerCertificates[1:] {
				intermediates.AddCert(c)
			}
			_, err := cs.PeerCertificates[0].Verify(x509.VerifyOptions{
				Roots:         roots,
				Intermediates: intermediates,
				DNSName:       host,
			})
			return err
		},
	}
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (b *Bundle) metadataURL() string {
	return "https://" + net.JoinHostPort(b.Host, strconv.Itoa(b.Port)) + "/metadata"
}

func (b *Bundle) fetchMetadata(ctx context.Context) (*bundleMetadata, error) {
	client := &http.Client{
		Timeout:   10 * time.Second,
		Transport: &http.Transport{TLSClientConfig: b.tls.Clone()},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.metadataURL(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch cluster metadata: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch cluster metadata: unexpected status %d", resp.StatusCode)
	}

	var md bundleMetadata
	if err := json.NewDecoder(resp.Body).Decode(&md); err != nil {
		return nil, fmt.Errorf("decode cluster metadata: %w", err)
	}
	if md.ContactInfo.SNIProxyAddress == "" || len(md.ContactInfo.ContactPoints) == 0 {
		return nil, errors.New("cluster metadata has no proxy address or contact points")
	}
	return &md, nil
}

// Cluster resolves the bundle's metadata service and returns a cluster config
// that reaches every node through the SNI proxy.
func (b *Bundle) Cluster(ctx context.Context) (*gocql.ClusterConfig, error) {
	md, err := b.fetchMetadata(ctx)
	if err != nil {
		return nil, err
	}
	proxyHost, proxyPort, err := net.SplitHostPort(md.ContactInfo.SNIProxyAddress)
	if err != nil {
		return nil, fmt.Errorf("parse sni proxy address: %w", err)
	}
	port, err := strconv.Atoi(proxyPort)
	if err != nil {
		return nil, fmt.Errorf("parse sni proxy port: %w", err)
	}

	localDC := md.ContactInfo.LocalDC
	if localDC == "" {
		localDC = b.LocalDC
	}

	cluster := gocql.NewCluster(proxyHost)
	cluster.Port = port
	cluster.HostDialer = &sniDialer{
		proxyAddr:     md.ContactInfo.SNIProxyAddress,
		contactPoints: md.ContactInfo.ContactPoints,
		tls:           b.tls,
	}
	if localDC != "" {
		cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.DCAwareRoundRobinPolicy(localDC))
	}
	return cluster, nil
}

// sniDialer opens every node connection against the proxy and names the
// target node in the TLS server name.
type sniDialer struct {
	proxyAddr     string
	contactPoints []string
	tls           *tls.Config
	dialer        net.Dialer
}

func (d *sniDialer) DialHost(ctx context.Context, host *gocql.HostInfo) (*gocql.DialedHost, error) {
	serverName := host.HostID()
	if serverName == "" {
		serverName = d.contactPoints[0]
	}

	conn, err := d.dialer.DialContext(ctx, "tcp", d.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("dial sni proxy: %w", err)
	}
	cfg := d.tls.Clone()
	cfg.ServerName = serverName
	tconn := tls.Client(conn, cfg)
	if err := tconn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", serverName, err)
	}
	return &gocql.DialedHost{Conn: tconn, DisableCoalesce: true}, nil
}

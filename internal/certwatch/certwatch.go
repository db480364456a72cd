// Package certwatch serves a TLS certificate pair and reloads it when
// the files change on disk, so certificate rotation does not require a
// restart.
package certwatch

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Reloader holds the current certificate and watches the cert/key
// files for changes.
type Reloader struct {
	certPath string
	keyPath  string
	logger   *slog.Logger

	mu   sync.RWMutex
	cert *tls.Certificate
}

// New creates a Reloader and performs the initial load.
func New(certPath, keyPath string, logger *slog.Logger) (*Reloader, error) {
	r := &Reloader{certPath: certPath, keyPath: keyPath, logger: logger}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// GetCertificate is the tls.Config callback. It returns the most
// recently loaded certificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

// Reload re-reads the certificate pair from disk. On failure the
// previously loaded certificate stays in service.
func (r *Reloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certPath, r.keyPath)
	if err != nil {
		return fmt.Errorf("certwatch: load %s: %w", r.certPath, err)
	}
	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()
	return nil
}

// Watch starts a background goroutine that reloads the certificate
// when either file is written or recreated. Call the returned stop
// function to clean up.
func (r *Reloader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("certwatch: %w", err)
	}
	for _, path := range []string{r.certPath, r.keyPath} {
		if err := w.Add(path); err != nil {
			w.Close()
			return nil, fmt.Errorf("certwatch: watch %s: %w", path, err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if err := r.Reload(); err != nil {
						// Keep serving the old certificate; the next
						// change event retries.
						r.logger.Warn("certificate reload failed", "error", err)
						continue
					}
					r.logger.Info("certificate reloaded", "cert", r.certPath)
				}
			case <-w.Errors:
				// Ignore watcher errors.
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

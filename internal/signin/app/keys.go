package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/signin/pkg/cryptox"
	"github.com/aussiebroadwan/signin/pkg/jwtx"
)

// Keys is the key material of the cookies.
type Keys struct {
	Signer *jwtx.HS256
	Sealer *cryptox.Sealer
}

// InitKeys loads the pepper, the session signing key and the cookie keyset,
// generating any file that does not exist yet. Deleting the key file or the
// keyset signs every browser out.
func InitKeys(cfg Config, logger *slog.Logger) (Keys, error) {
	cryptox.SetPepperPath(cfg.PepperFile)

	secret, err := cryptox.LoadOrGenerateSecret(cfg.SessionKeyFile, jwtx.MinHS256KeySize)
	if err != nil {
		return Keys{}, fmt.Errorf("failed to load session key: %w", err)
	}
	signer, err := jwtx.NewHS256(secret, cfg.Issuer)
	if err != nil {
		return Keys{}, err
	}

	handle, err := cryptox.LoadOrGenerateKeyset(cfg.KeysetFile)
	if err != nil {
		return Keys{}, fmt.Errorf("failed to load cookie keyset: %w", err)
	}
	sealer, err := cryptox.NewSealer(handle)
	if err != nil {
		return Keys{}, err
	}

	logger.Info("cookie keys loaded",
		"session_key_file", cfg.SessionKeyFile,
		"keyset_file", cfg.KeysetFile,
		"issuer", cfg.Issuer,
	)
	return Keys{Signer: signer, Sealer: sealer}, nil
}

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ruteri/credential-registry-backend/api"
	"github.com/ruteri/credential-registry-backend/api/clients"
	"github.com/ruteri/credential-registry-backend/cmd/flags"
	"github.com/ruteri/credential-registry-backend/cryptoutils"
	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/ruteri/credential-registry-backend/kms"
	"github.com/ruteri/credential-registry-backend/storage"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "recovery",
		Usage: "Recover credential files from custodian shares and verify credentials",
		Flags: append([]cli.Flag{flags.LogServiceFlagFn("recovery"), flags.ServerAddrFlag}, flags.LogFlags...),
		Commands: []*cli.Command{
			{
				Name:  "recover",
				Usage: "Combine unsealed shares, fetch the ciphertext and decrypt it",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "bundle", Usage: "recovery bundle JSON file"},
					&cli.StringFlag{Name: "file-hash", Usage: "fetch the bundle for this file hash from --server"},
					&cli.StringSliceFlag{Name: "share", Required: true, Usage: "unsealed share as custodianId=hex, repeatable"},
					&cli.StringSliceFlag{
						Name:    "storage",
						Usage:   "storage backend URI to fetch the ciphertext from, repeatable",
						EnvVars: []string{"CREDREG_STORAGE"},
					},
					&cli.StringFlag{Name: "out", Required: true, Usage: "path for the recovered file"},
				},
				Action: recoverFile,
			},
			{
				Name:  "verify",
				Usage: "Hash a file or metadata locally and look it up on the server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "credential file to verify"},
					&cli.StringFlag{Name: "metadata", Usage: "metadata JSON file to verify"},
				},
				Action: verify,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func recoverFile(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx, cancel := context.WithTimeout(cCtx.Context, 2*time.Minute)
	defer cancel()

	bundle, err := loadBundle(ctx, cCtx)
	if err != nil {
		return err
	}

	session, err := kms.NewRecoverySession(bundle)
	if err != nil {
		return err
	}
	defer session.Close()

	for _, arg := range cCtx.StringSlice("share") {
		id, shareHex, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("share %q must be custodianId=hex", arg)
		}
		share, err := hex.DecodeString(shareHex)
		if err != nil {
			return fmt.Errorf("share for %s is not hex: %w", id, err)
		}
		err = session.SubmitShare(id, share)
		cryptoutils.Wipe(share)
		if errors.Is(err, kms.ErrSessionUnlocked) {
			logger.Info("Threshold already reached, ignoring extra share", "custodianId", id)
			continue
		}
		if err != nil {
			return err
		}
	}
	if !session.IsUnlocked() {
		return fmt.Errorf("%w: %d shares required", kms.ErrSessionLocked, bundle.Threshold)
	}

	storageURIs := cCtx.StringSlice("storage")
	if len(storageURIs) == 0 {
		return errors.New("at least one --storage backend is required to fetch the ciphertext")
	}
	locations := make([]interfaces.StorageBackendLocation, 0, len(storageURIs))
	for _, uri := range storageURIs {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return err
		}
		locations = append(locations, loc)
	}
	backend, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(locations)
	if err != nil {
		return err
	}

	ciphertext, err := backend.Fetch(ctx, bundle.Locator)
	if err != nil {
		return fmt.Errorf("failed to fetch ciphertext: %w", err)
	}

	plaintext, err := session.Decrypt(ciphertext)
	if err != nil {
		return err
	}
	defer cryptoutils.Wipe(plaintext)

	out := cCtx.String("out")
	if err := os.WriteFile(out, plaintext, 0o600); err != nil {
		return err
	}
	logger.Info("Credential recovered", "fileHash", bundle.ContentHash.String(), "out", out)
	return nil
}

func loadBundle(ctx context.Context, cCtx *cli.Context) (*interfaces.RecoveryBundle, error) {
	if path := cCtx.String("bundle"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var bundle interfaces.RecoveryBundle
		if err := json.Unmarshal(data, &bundle); err != nil {
			return nil, fmt.Errorf("failed to parse bundle: %w", err)
		}
		return &bundle, nil
	}

	fileHash := cCtx.String("file-hash")
	if fileHash == "" {
		return nil, errors.New("either --bundle or --file-hash is required")
	}
	digest, err := interfaces.NewDigestFromHex(fileHash)
	if err != nil {
		return nil, err
	}
	return newClient(cCtx).GetBundle(ctx, digest)
}

func verify(cCtx *cli.Context) error {
	ctx, cancel := context.WithTimeout(cCtx.Context, 30*time.Second)
	defer cancel()

	var kind string
	var digest interfaces.Digest
	switch {
	case cCtx.String("file") != "":
		data, err := os.ReadFile(cCtx.String("file"))
		if err != nil {
			return err
		}
		kind, digest = "fileHash", cryptoutils.HashContent(data)
	case cCtx.String("metadata") != "":
		data, err := os.ReadFile(cCtx.String("metadata"))
		if err != nil {
			return err
		}
		canonical, err := cryptoutils.CanonicalizeJSON(data)
		if err != nil {
			return err
		}
		kind, digest = "jsonHash", cryptoutils.HashContent(canonical)
	default:
		return errors.New("either --file or --metadata is required")
	}

	result, err := newClient(cCtx).VerifyHash(ctx, kind, digest)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(struct {
		Kind   string              `json:"kind"`
		Hash   interfaces.Digest   `json:"hash"`
		Result *api.VerifyResponse `json:"result"`
	}{kind, digest, result}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !result.Valid {
		return cli.Exit("credential not found", 1)
	}
	return nil
}

func newClient(cCtx *cli.Context) *clients.CredentialClient {
	return clients.NewCredentialClient(cCtx.String(flags.ServerAddrFlag.Name), 30*time.Second)
}

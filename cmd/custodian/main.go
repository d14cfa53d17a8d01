package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/credential-registry-backend/api/clients"
	"github.com/ruteri/credential-registry-backend/cmd/flags"
	"github.com/ruteri/credential-registry-backend/cryptoutils"
	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/ruteri/credential-registry-backend/kms"
	"github.com/urfave/cli/v2"
)

const defaultKeyBits = 2048

func main() {
	app := &cli.App{
		Name:  "custodian",
		Usage: "Manage a custodian key pair and unseal credential key shares",
		Flags: append([]cli.Flag{flags.LogServiceFlagFn("custodian")}, flags.LogFlags...),
		Commands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "Generate an RSA key pair and print the custodian directory entry",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "custodian id (default: random uuid)"},
					&cli.StringFlag{Name: "name", Required: true, Usage: "custodian display name"},
					&cli.StringFlag{Name: "endpoint", Usage: "optional contact endpoint"},
					&cli.IntFlag{Name: "bits", Value: defaultKeyBits, Usage: "RSA modulus size"},
					&cli.StringFlag{Name: "out-dir", Value: ".", Usage: "directory for the key files"},
					&cli.StringFlag{Name: "directory", Usage: "custodian directory JSON file to append the entry to"},
				},
				Action: keygen,
			},
			{
				Name:  "unseal",
				Usage: "Decrypt this custodian's share of a credential key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true, Usage: "custodian id"},
					&cli.StringFlag{Name: "key", Required: true, Usage: "private key PEM file"},
					&cli.StringFlag{Name: "bundle", Usage: "recovery bundle JSON file"},
					&cli.StringFlag{Name: "file-hash", Usage: "fetch the bundle for this file hash from --server"},
					flags.ServerAddrFlag,
				},
				Action: unseal,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func keygen(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	id := cCtx.String("id")
	if id == "" {
		id = uuid.NewString()
	}

	pubPEM, privPEM, err := cryptoutils.GenerateCustodianKey(cCtx.Int("bits"))
	if err != nil {
		return err
	}

	outDir := cCtx.String("out-dir")
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return err
	}
	privPath := filepath.Join(outDir, id+".key.pem")
	pubPath := filepath.Join(outDir, id+".pub.pem")
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return err
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return err
	}
	logger.Info("Custodian key pair written", "private", privPath, "public", pubPath)

	entry := interfaces.Custodian{
		ID:           id,
		Name:         cCtx.String("name"),
		PublicKeyPEM: string(pubPEM),
		Endpoint:     cCtx.String("endpoint"),
	}

	if directory := cCtx.String("directory"); directory != "" {
		if err := appendToDirectory(directory, entry); err != nil {
			return err
		}
		logger.Info("Custodian added to directory", "directory", directory, "id", id)
	}

	out, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func appendToDirectory(path string, entry interfaces.Custodian) error {
	var list []interfaces.Custodian
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return err
	default:
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("failed to parse directory %s: %w", path, err)
		}
	}

	for _, c := range list {
		if c.ID == entry.ID {
			return fmt.Errorf("custodian %s is already in %s", entry.ID, path)
		}
	}
	list = append(list, entry)

	out, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(out, '\n'), 0o644)
}

func unseal(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	keyPEM, err := os.ReadFile(cCtx.String("key"))
	if err != nil {
		return err
	}
	priv, err := cryptoutils.ParseRSAPrivateKeyPEM(keyPEM)
	if err != nil {
		return err
	}

	bundle, err := loadBundle(cCtx)
	if err != nil {
		return err
	}

	share, err := kms.UnsealBundleShare(bundle, cCtx.String("id"), priv)
	if err != nil {
		return err
	}
	defer cryptoutils.Wipe(share)

	logger.Info("Share unsealed", "custodianId", cCtx.String("id"), "fileHash", bundle.ContentHash.String())
	fmt.Println(hex.EncodeToString(share))
	return nil
}

func loadBundle(cCtx *cli.Context) (*interfaces.RecoveryBundle, error) {
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

	ctx, cancel := context.WithTimeout(cCtx.Context, 30*time.Second)
	defer cancel()
	return clients.NewCredentialClient(cCtx.String(flags.ServerAddrFlag.Name), 30*time.Second).GetBundle(ctx, digest)
}

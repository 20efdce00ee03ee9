// Copyright 2022 Piprate Limited
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command vaultctl is a small demonstration CLI over the registration,
// wallet and protocol packages: enough to signup an account, issue a
// pin-based invite, unlock a locked-user record, list its filesystem
// tree, and encrypt/decrypt a database cell. It has no server — every
// subcommand reads and writes plain JSON files on disk, standing in for
// whatever transport a real deployment would use.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"github.com/xlab/treeprint"

	"github.com/piprate/metalocker-seedvault/fs"
	"github.com/piprate/metalocker-seedvault/model"
	"github.com/piprate/metalocker-seedvault/registration"
	"github.com/piprate/metalocker-seedvault/utils/jsonw"
	"github.com/piprate/metalocker-seedvault/wallet"
)

func main() {
	app := cli.NewApp()
	app.Name = "vaultctl"
	app.Usage = "demonstration CLI for the seed-hierarchy crypto core"
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "debug"},
	}

	app.Before = func(c *cli.Context) error {
		if c.Bool("debug") {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp})
		return nil
	}

	app.Commands = []*cli.Command{
		signupGodCommand,
		inviteCommand,
		signupAdminCommand,
		lsCommand,
		addFileCommand,
		encryptCellCommand,
		decryptCellCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("vaultctl command failed")
	}
}

var signupGodCommand = &cli.Command{
	Name:  "signup-god",
	Usage: "create the root identity of a new tree",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "password", Required: true},
		&cli.StringFlag{Name: "out", Required: true, Usage: "path to write the LockedUser record"},
	},
	Action: func(c *cli.Context) error {
		nu, err := registration.SignupAsGod(c.String("password"))
		if err != nil {
			return err
		}
		if err := writeLockedUser(c.String("out"), nu.Locked); err != nil {
			return err
		}
		log.Info().Str("id", nu.User.Identity().Id().String()).Msg("god identity created")
		return nil
	},
}

var inviteCommand = &cli.Command{
	Name:  "invite",
	Usage: "issue a pin-based invite sharing the inviter's full root authority",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "password", Required: true},
		&cli.StringFlag{Name: "locked", Required: true, Usage: "path to the inviter's LockedUser record"},
		&cli.StringFlag{Name: "email", Required: true},
		&cli.StringFlag{Name: "pin", Required: true},
		&cli.StringFlag{Name: "out", Required: true, Usage: "path to write the Invite"},
	},
	Action: func(c *cli.Context) error {
		locked, err := readLockedUser(c.String("locked"))
		if err != nil {
			return err
		}
		u, err := wallet.UnlockWithPassword(c.String("password"), locked, logRejected)
		if err != nil {
			return err
		}

		invite, err := u.InviteWithSeedsForEmailAndPin(c.String("email"), c.String("pin"), nil, nil)
		if err != nil {
			return err
		}

		raw, err := jsonw.MarshalIndent(invite, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(c.String("out"), raw, 0o600); err != nil {
			return err
		}

		log.Info().Str("userId", invite.UserID.String()).Msg("invite written")
		return nil
	},
}

var signupAdminCommand = &cli.Command{
	Name:  "signup-admin",
	Usage: "complete a pin-based invite into a new admin account",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "password", Required: true},
		&cli.StringFlag{Name: "welcome", Required: true, Usage: "path to a Welcome record"},
		&cli.StringFlag{Name: "pin", Required: true},
		&cli.StringFlag{Name: "out", Required: true, Usage: "path to write the new LockedUser record"},
	},
	Action: func(c *cli.Context) error {
		raw, err := os.ReadFile(c.String("welcome"))
		if err != nil {
			return err
		}
		var welcome model.Welcome
		if err := jsonw.Unmarshal(raw, &welcome); err != nil {
			return err
		}

		nu, err := registration.SignupAsAdminWithPin(c.String("password"), &welcome, c.String("pin"))
		if err != nil {
			return err
		}

		if err := writeLockedUser(c.String("out"), nu.Locked); err != nil {
			return err
		}

		log.Info().Str("id", nu.User.Identity().Id().String()).Msg("admin identity created")
		return nil
	},
}

var lsCommand = &cli.Command{
	Name:  "ls",
	Usage: "render the unlocked filesystem tree",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "password", Required: true},
		&cli.StringFlag{Name: "locked", Required: true},
	},
	Action: func(c *cli.Context) error {
		locked, err := readLockedUser(c.String("locked"))
		if err != nil {
			return err
		}
		u, err := wallet.UnlockWithPassword(c.String("password"), locked, logRejected)
		if err != nil {
			return err
		}

		tree := treeprint.New()
		for _, root := range u.FS.LsRoot() {
			renderNode(tree, root)
		}
		fmt.Println(tree.String())
		return nil
	},
}

func renderNode(branch treeprint.Tree, node *model.Node) {
	label := node.Name
	if node.Dirty {
		label += " (dirty)"
	}
	if node.Entry.IsDir() {
		sub := branch.AddBranch(label)
		for _, child := range node.Entry.Dir.Children {
			renderNode(sub, child)
		}
	} else {
		branch.AddNode(label)
	}
}

var addFileCommand = &cli.Command{
	Name:  "add-file",
	Usage: "seal a local file into a new LockedNode under an existing directory",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "password", Required: true},
		&cli.StringFlag{Name: "locked", Required: true},
		&cli.StringFlag{Name: "parent", Required: true, Usage: "id of the existing directory node"},
		&cli.StringFlag{Name: "path", Required: true, Usage: "local file to seal"},
		&cli.StringFlag{Name: "out", Required: true, Usage: "path to write the new LockedNode"},
	},
	Action: func(c *cli.Context) error {
		locked, err := readLockedUser(c.String("locked"))
		if err != nil {
			return err
		}
		u, err := wallet.UnlockWithPassword(c.String("password"), locked, logRejected)
		if err != nil {
			return err
		}

		parentID, err := model.ParseUid(c.String("parent"))
		if err != nil {
			return err
		}
		parent, ok := u.FS.NodeByID(parentID)
		if !ok || !parent.Entry.IsDir() {
			return model.ErrNotFound
		}

		content, err := os.ReadFile(c.String("path"))
		if err != nil {
			return err
		}

		fileID := model.GenerateUid()
		fileSeed := model.GenerateSeed()

		node, err := fs.NewFileNode(fileID, parentID, fileSeed, filepath.Base(c.String("path")), content, "")
		if err != nil {
			return err
		}

		childSeedEntry, err := model.EncryptChildSeed(parent.Seed, model.ChildSeed{Seed: fileSeed, IsDir: false})
		if err != nil {
			return err
		}

		out := struct {
			Node           model.LockedNode `json:"node"`
			ChildSeedEntry string            `json:"childSeedEntry"`
		}{Node: node, ChildSeedEntry: childSeedEntry}

		raw, err := jsonw.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(c.String("out"), raw, 0o600); err != nil {
			return err
		}

		log.Info().Str("id", fileID.String()).Str("parent", parentID.String()).Msg("file sealed")
		return nil
	},
}

var encryptCellCommand = &cli.Command{
	Name:  "encrypt-cell",
	Usage: "encrypt one database cell under this account's authority",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "password", Required: true},
		&cli.StringFlag{Name: "locked", Required: true},
		&cli.StringFlag{Name: "table", Required: true},
		&cli.StringFlag{Name: "column", Required: true},
		&cli.StringFlag{Name: "value", Required: true},
	},
	Action: func(c *cli.Context) error {
		locked, err := readLockedUser(c.String("locked"))
		if err != nil {
			return err
		}
		u, err := wallet.UnlockWithPassword(c.String("password"), locked, logRejected)
		if err != nil {
			return err
		}

		ct, err := u.EncryptDBEntry(c.String("table"), []byte(c.String("value")), c.String("column"))
		if err != nil {
			return err
		}
		fmt.Println(ct)
		return nil
	},
}

var decryptCellCommand = &cli.Command{
	Name:  "decrypt-cell",
	Usage: "decrypt one database cell",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "password", Required: true},
		&cli.StringFlag{Name: "locked", Required: true},
		&cli.StringFlag{Name: "table", Required: true},
		&cli.StringFlag{Name: "column", Required: true},
		&cli.StringFlag{Name: "value", Required: true},
	},
	Action: func(c *cli.Context) error {
		locked, err := readLockedUser(c.String("locked"))
		if err != nil {
			return err
		}
		u, err := wallet.UnlockWithPassword(c.String("password"), locked, logRejected)
		if err != nil {
			return err
		}

		pt, err := u.DecryptDBEntry(c.String("table"), c.String("value"), c.String("column"))
		if err != nil {
			return err
		}
		fmt.Println(string(pt))
		return nil
	},
}

func logRejected(share model.LockedShare, reason wallet.RejectReason) {
	log.Warn().
		Str("sender", share.Sender.Id().String()).
		Str("reason", reason.String()).
		Msg("discarded a share during unlock")
}

func readLockedUser(path string) (*model.LockedUser, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var locked model.LockedUser
	if err := jsonw.Unmarshal(raw, &locked); err != nil {
		return nil, err
	}
	return &locked, nil
}

func writeLockedUser(path string, locked *model.LockedUser) error {
	raw, err := jsonw.MarshalIndent(locked, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

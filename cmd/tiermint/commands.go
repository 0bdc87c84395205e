package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vitwit/tiermint"
	"github.com/vitwit/tiermint/clients"
	"github.com/vitwit/tiermint/types"
	"github.com/vitwit/tiermint/utils"
)

func (a *app) tiersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "List the mint tiers and their prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(a.configPath, cmd.Flags())
			if err != nil {
				return a.ui.fail(err)
			}
			tiers, err := cfg.TierOptions()
			if err != nil {
				return a.ui.fail(err)
			}
			a.ui.tiers(tiers, cfg.Network.Info().Symbol)
			return nil
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the contract, total supply and a token's metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, nil, func(ctx context.Context, m *tiermint.Minter) error {
				info, err := m.ContractInfo(ctx)
				if err != nil {
					return err
				}
				supply, err := m.TotalSupply(ctx)
				if err != nil {
					return err
				}

				id := supply.Value
				if token != "" {
					if id, err = utils.ValidateTokenID(token); err != nil {
						return types.NewError(types.ErrConfigError, err, "%v", err)
					}
				}

				st := status{Contract: info, Network: m.Config().Network, TotalSupply: supply.Value}
				if id != nil && id.Sign() > 0 {
					st.TokenID = id
					meta, err := m.Metadata(ctx, id)
					if err != nil {
						st.MetadataErr = err.Error()
					} else {
						st.Metadata = meta
					}
				}
				a.ui.status(st)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "token id to decode (default: latest)")
	return cmd
}

func (a *app) mintCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "mint <tier>",
		Short: "Mint one token of the given tier and wait for confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := strconv.Atoi(args[0])
			if err != nil {
				return a.ui.fail(types.NewError(types.ErrPrepareFailed, err, "tier must be a number, got %q", args[0]))
			}

			approver := clients.AutoApprove
			if !yes {
				approver = promptApprover(a.in, a.out)
			}
			opts := []tiermint.Option{tiermint.WithApprover(approver)}

			return a.run(cmd, opts, func(ctx context.Context, m *tiermint.Minter) error {
				if err := m.Connect(ctx); err != nil {
					return err
				}
				a.ui.connected(m.Address())
				stopRender := a.ui.follow(m.Session())
				defer stopRender()

				outcome, err := m.Mint(ctx, tier)
				if outcome == nil {
					return err
				}
				a.ui.outcome(m.Session().View(), outcome)
				if err != nil {
					return reported{err}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "sign without asking")
	return cmd
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the total supply as new blocks arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, nil, func(ctx context.Context, m *tiermint.Minter) error {
				if _, err := m.TotalSupply(ctx); err != nil {
					return err
				}
				a.ui.supply(m.Session().Snapshot().TotalSupply)

				unsubscribe := m.Session().Subscribe(func(s types.UISessionState) {
					a.ui.supply(s.TotalSupply)
				})
				defer unsubscribe()

				err := m.Watch(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a.ui.version(tiermint.GetVersion())
		},
	}
}

// promptApprover asks on out and reads the answer from in.
func promptApprover(in io.Reader, out io.Writer) clients.Approver {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, req clients.TxRequest) error {
		fmt.Fprintf(out, "Send %s to %s (gas %d, max cost %s)? [y/N] ",
			types.WeiToEther(req.Value), req.To.Hex(), req.Gas, types.WeiToEther(req.MaxCost()))

		answer := make(chan string, 1)
		go func() {
			line, _ := reader.ReadString('\n')
			answer <- strings.ToLower(strings.TrimSpace(line))
		}()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-answer:
			if a == "y" || a == "yes" {
				return nil
			}
			return clients.ErrSignatureDeclined
		}
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fixkme/timerd/framework/config"
	"github.com/fixkme/timerd/framework/core"
	"github.com/fixkme/timerd/rpc"
	sd "github.com/fixkme/timerd/servicediscovery/discovery"
	"github.com/fixkme/timerd/servicediscovery/impl/etcd"
	"github.com/spf13/cobra"
)

const absent = "(absent)"

type callOptions struct {
	addr    string
	etcd    string // 不为空时从etcd选节点, 忽略addr
	group   string
	node    string
	timeout time.Duration
}

func newCallCommand() *cobra.Command {
	opts := &callOptions{}
	cmd := &cobra.Command{
		Use:   "call <op> [args...]",
		Short: "invoke an operation on a running node",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			addr, err := opts.resolve(ctx)
			if err != nil {
				return err
			}
			cli, err := rpc.Dial(ctx, addr, rpc.ClientOpt{CallTimeout: opts.timeout})
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer cli.Close()
			return printResult(ctx, cmd.OutOrStdout(), rpcCaller{cli}, args[0], args[1:])
		},
	}
	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "127.0.0.1:7320", "node rpc address")
	cmd.Flags().StringVar(&opts.etcd, "etcd", "", "etcd endpoints, comma separated; resolves the node instead of --addr")
	cmd.Flags().StringVar(&opts.group, "group", "timerd", "rpc group the node registered in")
	cmd.Flags().StringVar(&opts.node, "node", "", "node name (timerd:<uuid>), random node when empty")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 3*time.Second, "dial and call timeout")
	return cmd
}

func (o *callOptions) resolve(ctx context.Context) (string, error) {
	if o.etcd == "" {
		return o.addr, nil
	}
	disc, err := etcd.NewEtcdDiscovery(ctx, core.EtcdOptions(&config.RpcConfig{
		EtcdEndpoints: o.etcd,
		RpcGroup:      o.group,
	}))
	if err != nil {
		return "", fmt.Errorf("etcd %s: %w", o.etcd, err)
	}
	defer disc.Stop()
	return lookupNode(disc, o.node)
}

// lookupNode node为空时随机选一个已注册的节点
func lookupNode(disc sd.Discovery, node string) (string, error) {
	disc.Start()
	if node == "" {
		node = core.ServiceName
	}
	return disc.GetService(node)
}

type caller interface {
	Call(ctx context.Context, op string, args ...string) (string, bool, error)
}

// rpcCaller 把rpc响应还原成 (data, ok, err)
type rpcCaller struct {
	cli *rpc.Client
}

func (c rpcCaller) Call(ctx context.Context, op string, args ...string) (string, bool, error) {
	rsp, err := c.cli.Call(ctx, op, args...)
	if err != nil {
		return "", false, err
	}
	return rsp.Result()
}

// printResult 没有返回值时输出 (absent)
func printResult(ctx context.Context, w io.Writer, c caller, op string, args []string) error {
	data, ok, err := c.Call(ctx, op, args...)
	if err != nil {
		return err
	}
	if !ok {
		data = absent
	}
	_, err = fmt.Fprintln(w, data)
	return err
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/hellomail/internal/config"
	"github.com/dropDatabas3/hellomail/internal/email"
	mailhttp "github.com/dropDatabas3/hellomail/internal/http"
	"github.com/dropDatabas3/hellomail/internal/observability/logger"
	"github.com/dropDatabas3/hellomail/internal/security/secretbox"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// rootOpts son los flags globales y la config ya cargada.
type rootOpts struct {
	cfgPath string
	envFile string
	server  string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	o := &rootOpts{
		cfgPath: os.Getenv("HELLOMAIL_CONFIG"),
		envFile: ".env",
		server:  os.Getenv("HELLOMAIL_SERVER"),
	}

	root := &cobra.Command{
		Use:           "hellomail",
		Short:         "Emails transaccionales (reset de password y activación de cuenta)",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env opcional: si no existe seguimos sólo con el entorno
			if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("env file %s: %w", o.envFile, err)
			}
			c, err := config.Load(o.cfgPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			o.cfg = c
			logger.Init(loggerConfig(c))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&o.cfgPath, "config", o.cfgPath, "Archivo YAML de configuración (env HELLOMAIL_CONFIG)")
	root.PersistentFlags().StringVar(&o.envFile, "env-file", o.envFile, "Archivo .env a cargar antes de leer el entorno")
	root.PersistentFlags().StringVar(&o.server, "server", o.server, "URL de un 'hellomail serve'; send/preview van por HTTP (env HELLOMAIL_SERVER)")

	root.AddCommand(
		newSendCmd(o),
		newPreviewCmd(o),
		newSealCmd(o),
		newServeCmd(o),
	)
	return root
}

// mailFlags son los flags comunes de send y preview.
type mailFlags struct {
	kind, to, name, code, url string
}

func (f *mailFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "kind", "user_activation", "password_reset | user_activation")
	cmd.Flags().StringVar(&f.to, "to", "", "Dirección del destinatario")
	cmd.Flags().StringVar(&f.name, "name", "", "Nombre del destinatario")
	cmd.Flags().StringVar(&f.code, "code", "", "Código de activación/reset")
	cmd.Flags().StringVar(&f.url, "url", "", "URL base del frontend (default: frontend.url)")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("code")
}

func (f *mailFlags) request() (email.SendRequest, error) {
	kind, ok := email.ParseKind(f.kind)
	if !ok {
		return email.SendRequest{}, fmt.Errorf("kind desconocido %q (password_reset|user_activation)", f.kind)
	}
	return email.SendRequest{
		Kind:       kind,
		To:         email.Mailbox{Name: f.name, Address: f.to},
		Activation: email.Activation{Code: f.code, URL: f.url},
	}, nil
}

func (f *mailFlags) remoteRequest() (mailhttp.MailRequest, error) {
	req, err := f.request()
	if err != nil {
		return mailhttp.MailRequest{}, err
	}
	return mailhttp.MailRequest{Kind: req.Kind.String(), To: req.To, Activation: req.Activation}, nil
}

func newSendCmd(o *rootOpts) *cobra.Command {
	var (
		f       mailFlags
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Envía un email por SMTP (o vía --server)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			out := cmd.OutOrStdout()

			if o.server != "" {
				in, err := f.remoteRequest()
				if err != nil {
					return err
				}
				res, err := newClient(o.server, timeout).send(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "sent %s message_id=%s via %s\n", res.Kind, res.MessageID, o.server)
				return nil
			}

			req, err := f.request()
			if err != nil {
				return err
			}
			d, err := buildDeps(o.cfg, nil, true)
			if err != nil {
				return err
			}
			res, err := d.service.Send(ctx, req)
			if err != nil {
				diag := email.DiagnoseSMTP(err)
				return fmt.Errorf("send (%s, temporary=%t): %w", diag.Code, diag.Temporary, err)
			}
			fmt.Fprintf(out, "sent %s message_id=%s in %s\n", res.Kind, res.MessageID, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Tiempo máximo para el envío")
	return cmd
}

func newPreviewCmd(o *rootOpts) *cobra.Command {
	var (
		f      mailFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Muestra el email renderizado sin enviarlo",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := preview(cmd.Context(), o, &f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			}
			fmt.Fprintf(out, "From: %s\nTo: %s\nSubject: %s\n\n%s\n", p.From, p.To, p.Subject, p.HTML)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Salida JSON")
	return cmd
}

func preview(ctx context.Context, o *rootOpts, f *mailFlags) (*mailhttp.PreviewResponse, error) {
	if o.server != "" {
		in, err := f.remoteRequest()
		if err != nil {
			return nil, err
		}
		return newClient(o.server, 30*time.Second).preview(ctx, in)
	}

	req, err := f.request()
	if err != nil {
		return nil, err
	}
	d, err := buildDeps(o.cfg, nil, false)
	if err != nil {
		return nil, err
	}
	msg, err := d.service.Compose(ctx, req)
	if err != nil {
		return nil, err
	}
	return &mailhttp.PreviewResponse{
		Kind:    msg.Kind.String(),
		From:    msg.From.String(),
		To:      msg.To.String(),
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}, nil
}

func newSealCmd(o *rootOpts) *cobra.Command {
	var open bool
	cmd := &cobra.Command{
		Use:   "seal <texto>",
		Short: "Cifra (o con --open descifra) un código con SECRETBOX_MASTER_KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(o.cfg, nil, false)
			if err != nil {
				return err
			}
			if d.box == nil {
				return fmt.Errorf("%s not set", secretbox.EnvMasterKey)
			}
			var out string
			if open {
				out, err = d.box.Open(args[0])
			} else {
				out, err = d.box.Seal(args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&open, "open", false, "Descifrar en lugar de cifrar")
	return cmd
}

func newServeCmd(o *rootOpts) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expone /v1/mail/send, /v1/mail/preview, /readyz y /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := o.cfg
			if addr == "" {
				addr = c.Server.Addr
			}

			reg := prometheus.DefaultRegisterer
			d, err := buildDeps(c, reg, true)
			if err != nil {
				return err
			}
			httpMetrics, err := mailhttp.NewMetrics(reg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			limiter, closeLimiter, err := buildLimiter(ctx, c)
			if err != nil {
				return err
			}
			defer closeLimiter()

			mail := mailhttp.NewMailHandler(d.service, d.templates)
			if limiter != nil {
				mail.WithLimiter(limiter)
			}
			handler := mailhttp.NewRouter(mailhttp.RouterConfig{
				Mail:    mail,
				Metrics: httpMetrics,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return mailhttp.Start(gctx, addr, handler)
			})
			g.Go(func() error {
				// precarga de templates; un faltante se reporta en /readyz
				for _, name := range []string{email.TemplateActivation, email.TemplatePasswordReset} {
					if _, err := d.templates.Load(gctx, name); err != nil {
						logger.L().Warn("template warmup failed", logger.Template(name), logger.Err(err))
					}
				}
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Dirección de escucha (default: server.addr / SERVER_ADDR)")
	return cmd
}

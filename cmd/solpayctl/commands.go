package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"solpay-gateway/internal/domain"
	"solpay-gateway/internal/domain/model"
	pg "solpay-gateway/internal/infra/db/postgres"
	"solpay-gateway/internal/infra/sched"
	"solpay-gateway/internal/infra/web"
	"solpay-gateway/internal/paylink"
	"solpay-gateway/internal/pda"
	"solpay-gateway/internal/usecase"

	"github.com/gagliardetto/solana-go"
)

func newFlags(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func parseKey(field, s string) (solana.PublicKey, error) {
	k, err := solana.PublicKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %s %q is not a base58 address", domain.ErrInvalidArgument, field, s)
	}
	return k, nil
}

func parseKeys(field, csv string) ([]solana.PublicKey, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, nil
	}
	var out []solana.PublicKey
	for _, part := range strings.Split(csv, ",") {
		k, err := parseKey(field, part)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// keyOrWallet parses s, falling back to the keypair's address when empty.
func (e *env) keyOrWallet(field, s string) (solana.PublicKey, error) {
	if s != "" {
		return parseKey(field, s)
	}
	w, err := e.wallet()
	if err != nil {
		return solana.PublicKey{}, err
	}
	return w.PublicKey(), nil
}

func sol(lamports uint64) string { return model.SOL(lamports).String() + " SOL" }

func printSettlement(out io.Writer, s *usecase.Settlement) {
	fmt.Fprintf(out, "signature:     %s\n", s.Signature)
	for _, kv := range []struct {
		label string
		key   solana.PublicKey
	}{
		{"merchant:     ", s.Merchant},
		{"plan:         ", s.Plan},
		{"subscription: ", s.Subscription},
		{"payment log:  ", s.PaymentRecord},
	} {
		if !kv.key.IsZero() {
			fmt.Fprintf(out, "%s %s\n", kv.label, kv.key)
		}
	}
	if s.Warning != nil {
		fmt.Fprintf(out, "warning:       %s\n", s.Warning)
	}
}

func cmdDerive(_ context.Context, e *env, args []string) error {
	d := pda.New(e.program)
	if len(args) == 0 {
		return fmt.Errorf("%w: derive merchant|plan|subscription|payment ...", domain.ErrInvalidArgument)
	}
	var (
		addr solana.PublicKey
		bump uint8
		err  error
	)
	switch kind, rest := args[0], args[1:]; {
	case kind == "merchant" && len(rest) == 1:
		var owner solana.PublicKey
		if owner, err = parseKey("owner", rest[0]); err != nil {
			return err
		}
		addr, bump, err = d.Merchant(owner)
	case kind == "plan" && len(rest) == 2:
		var merchant solana.PublicKey
		if merchant, err = parseKey("merchant", rest[1]); err != nil {
			return err
		}
		addr, bump, err = d.Plan(rest[0], merchant)
	case kind == "subscription" && len(rest) == 2:
		var plan, subscriber solana.PublicKey
		if plan, err = parseKey("plan", rest[0]); err != nil {
			return err
		}
		if subscriber, err = parseKey("subscriber", rest[1]); err != nil {
			return err
		}
		addr, bump, err = d.UserSubscription(plan, subscriber)
	case kind == "payment" && len(rest) == 1:
		addr, bump, err = d.Payment(rest[0])
	default:
		return fmt.Errorf("%w: usage: derive merchant <owner> | plan <name> <merchant> | subscription <plan> <subscriber> | payment <signature>", domain.ErrInvalidArgument)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s %d\n", addr, bump)
	return nil
}

func cmdRegisterMerchant(ctx context.Context, e *env, args []string) error {
	fs := newFlags("register-merchant", e.out)
	name := fs.String("name", "", "merchant display name")
	website := fs.String("website", "", "merchant website")
	tokens := fs.String("tokens", "", "comma-separated accepted asset mints (default native SOL)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	supported, err := parseKeys("token", *tokens)
	if err != nil {
		return err
	}
	orch, err := e.orchestrator(ctx)
	if err != nil {
		return err
	}
	s, err := orch.RegisterMerchant(ctx, *name, *website, supported)
	if err != nil {
		return err
	}
	printSettlement(e.out, s)
	return nil
}

func cmdCreatePlan(ctx context.Context, e *env, args []string) error {
	fs := newFlags("create-plan", e.out)
	name := fs.String("name", "", "plan name (at most 32 bytes)")
	price := fs.String("price", "", "price per cycle in SOL, e.g. 0.5")
	cycle := fs.Uint("cycle", 30, "billing cycle in days (1-255)")
	asset := fs.String("asset", "", "settlement asset (default native SOL)")
	tokens := fs.String("tokens", "", "comma-separated accepted assets (default the settlement asset)")
	inactive := fs.Bool("inactive", false, "create the plan deactivated")
	if err := fs.Parse(args); err != nil {
		return err
	}
	lamports, err := model.ParseSOL(*price)
	if err != nil {
		return err
	}
	if *cycle == 0 || *cycle > 255 {
		return fmt.Errorf("%w: cycle must be between 1 and 255 days", domain.ErrInvalidArgument)
	}
	params := model.PlanParams{
		Name:             *name,
		Price:            lamports,
		Asset:            model.NativeAsset,
		BillingCycleDays: uint8(*cycle),
		Active:           !*inactive,
	}
	if *asset != "" {
		if params.Asset, err = parseKey("asset", *asset); err != nil {
			return err
		}
	}
	if params.SupportedAssets, err = parseKeys("token", *tokens); err != nil {
		return err
	}

	orch, err := e.orchestrator(ctx)
	if err != nil {
		return err
	}
	s, err := orch.CreatePlan(ctx, params)
	if err != nil {
		return err
	}
	printSettlement(e.out, s)
	return nil
}

func cmdSetPlanActive(ctx context.Context, e *env, args []string) error {
	fs := newFlags("set-plan-active", e.out)
	planStr := fs.String("plan", "", "plan address")
	active := fs.Bool("active", true, "target state")
	force := fs.Bool("force", false, "deactivate even with live subscribers")
	if err := fs.Parse(args); err != nil {
		return err
	}
	plan, err := parseKey("plan", *planStr)
	if err != nil {
		return err
	}
	if !*active && !*force {
		n, err := e.query().ActiveSubscribers(ctx, plan)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: plan has %d active subscribers (use -force)", domain.ErrInvalidArgument, n)
		}
	}
	orch, err := e.orchestrator(ctx)
	if err != nil {
		return err
	}
	s, err := orch.UpdatePlanActiveFlag(ctx, plan, *active)
	if err != nil {
		return err
	}
	printSettlement(e.out, s)
	return nil
}

func cmdSubscribe(ctx context.Context, e *env, args []string) error {
	fs := newFlags("subscribe", e.out)
	planStr := fs.String("plan", "", "plan address")
	merchantStr := fs.String("merchant", "", "expected merchant owner (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req := usecase.SubscribeRequest{}
	var err error
	if req.Plan, err = parseKey("plan", *planStr); err != nil {
		return err
	}
	if *merchantStr != "" {
		if req.Merchant, err = parseKey("merchant", *merchantStr); err != nil {
			return err
		}
	}
	orch, err := e.orchestrator(ctx)
	if err != nil {
		return err
	}
	s, err := orch.SubscribeAndPay(ctx, req)
	if err != nil {
		return err
	}
	printSettlement(e.out, s)
	return nil
}

func cmdPay(ctx context.Context, e *env, args []string) error {
	fs := newFlags("pay", e.out)
	merchantStr := fs.String("merchant", "", "merchant owner address")
	amount := fs.String("amount", "", "amount in SOL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	merchant, err := parseKey("merchant", *merchantStr)
	if err != nil {
		return err
	}
	lamports, err := model.ParseSOL(*amount)
	if err != nil {
		return err
	}
	orch, err := e.orchestrator(ctx)
	if err != nil {
		return err
	}
	s, err := orch.PayOnce(ctx, merchant, lamports)
	if err != nil {
		return err
	}
	printSettlement(e.out, s)
	return nil
}

func cmdCancel(ctx context.Context, e *env, args []string) error {
	fs := newFlags("cancel", e.out)
	subStr := fs.String("subscription", "", "subscription address")
	planStr := fs.String("plan", "", "plan address; derives the wallet's subscription")
	if err := fs.Parse(args); err != nil {
		return err
	}
	orch, err := e.orchestrator(ctx)
	if err != nil {
		return err
	}
	var sub solana.PublicKey
	switch {
	case *subStr != "":
		if sub, err = parseKey("subscription", *subStr); err != nil {
			return err
		}
	case *planStr != "":
		plan, err := parseKey("plan", *planStr)
		if err != nil {
			return err
		}
		if sub, _, err = pda.New(e.program).UserSubscription(plan, orch.Wallet()); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: -subscription or -plan is required", domain.ErrInvalidArgument)
	}
	s, err := orch.CancelSubscription(ctx, sub)
	if err != nil {
		return err
	}
	printSettlement(e.out, s)
	return nil
}

func cmdPlans(ctx context.Context, e *env, args []string) error {
	fs := newFlags("plans", e.out)
	merchantStr := fs.String("merchant", "", "merchant owner (default the keypair)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	merchant, err := e.keyOrWallet("merchant", *merchantStr)
	if err != nil {
		return err
	}
	plans, err := e.query().PlansByMerchant(ctx, merchant)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tNAME\tPRICE\tCYCLE\tACTIVE")
	for _, p := range plans {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%dd\t%t\n", p.Address, p.Name, sol(p.Price), p.BillingCycleDays, p.Active)
	}
	return tw.Flush()
}

func cmdSubscriptions(ctx context.Context, e *env, args []string) error {
	fs := newFlags("subscriptions", e.out)
	merchantStr := fs.String("merchant", "", "list a merchant's subscribers instead")
	subscriberStr := fs.String("subscriber", "", "subscriber wallet (default the keypair)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	q := e.query()
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	if *merchantStr != "" {
		merchant, err := parseKey("merchant", *merchantStr)
		if err != nil {
			return err
		}
		subs, err := q.SubscriptionsByMerchant(ctx, merchant)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "ADDRESS\tSUBSCRIBER\tPLAN\tNEXT BILLING\tACTIVE")
		for _, s := range subs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", s.Address, s.Subscriber, s.Plan, s.NextBillingDate.Format(time.DateOnly), !s.Canceled())
		}
		return tw.Flush()
	}

	subscriber, err := e.keyOrWallet("subscriber", *subscriberStr)
	if err != nil {
		return err
	}
	subs, err := q.SubscriptionsWithPlans(ctx, subscriber)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "ADDRESS\tPLAN\tPRICE\tNEXT BILLING\tACTIVE")
	for _, sp := range subs {
		name, price := sp.Subscription.Plan.String(), "-"
		if sp.Plan != nil {
			name, price = sp.Plan.Name, sol(sp.Plan.Price)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", sp.Subscription.Address, name, price, sp.Subscription.NextBillingDate.Format(time.DateOnly), !sp.Subscription.Canceled())
	}
	return tw.Flush()
}

func cmdPayments(ctx context.Context, e *env, args []string) error {
	fs := newFlags("payments", e.out)
	merchantStr := fs.String("merchant", "", "list payments received by this merchant")
	payerStr := fs.String("payer", "", "list payments made by this wallet (default the keypair)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	q := e.query()
	var (
		payments []*model.PaymentTransaction
		err      error
	)
	if *merchantStr != "" {
		merchant, perr := parseKey("merchant", *merchantStr)
		if perr != nil {
			return perr
		}
		payments, err = q.PaymentsByMerchant(ctx, merchant)
	} else {
		payer, perr := e.keyOrWallet("payer", *payerStr)
		if perr != nil {
			return perr
		}
		payments, err = q.PaymentsByPayer(ctx, payer)
	}
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSIGNATURE\tPAYER\tMERCHANT\tAMOUNT\tSTATUS")
	for _, p := range payments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", p.CreatedAt.UTC().Format(time.RFC3339), p.Signature, p.Payer, p.Merchant, sol(p.Amount), p.Status)
	}
	return tw.Flush()
}

func cmdStats(ctx context.Context, e *env, args []string) error {
	fs := newFlags("stats", e.out)
	merchantStr := fs.String("merchant", "", "merchant owner (default the keypair)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	merchant, err := e.keyOrWallet("merchant", *merchantStr)
	if err != nil {
		return err
	}
	st, err := e.query().MerchantStats(ctx, merchant)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "plans:          %d (%d active)\n", st.Plans, st.ActivePlans)
	fmt.Fprintf(e.out, "subscriptions:  %d (%d active)\n", st.Subscriptions, st.ActiveSubscriptions)
	fmt.Fprintf(e.out, "payments:       %d\n", st.Payments)
	fmt.Fprintf(e.out, "revenue:        %s SOL\n", st.Revenue)
	return nil
}

func cmdLink(ctx context.Context, e *env, args []string) error {
	fs := newFlags("link", e.out)
	merchantStr := fs.String("merchant", "", "merchant owner (default the keypair)")
	amount := fs.String("amount", "", "one-time amount in SOL")
	description := fs.String("description", "", "shown at checkout")
	ttl := fs.Duration("ttl", 0, "token lifetime (default paylink.default_ttl)")
	planStr := fs.String("plan", "", "issue a subscribe link for this plan")
	if err := fs.Parse(args); err != nil {
		return err
	}
	codec, err := paylink.NewCodec(e.cfg.Paylink.SignerSecret)
	if err != nil {
		return err
	}
	merchant, err := e.keyOrWallet("merchant", *merchantStr)
	if err != nil {
		return err
	}
	req := paylink.Request{Merchant: merchant.String(), Description: *description, TTL: *ttl}
	if req.TTL <= 0 {
		req.TTL = e.cfg.Paylink.DefaultTTL
	}
	if *amount != "" {
		lamports, err := model.ParseSOL(*amount)
		if err != nil {
			return err
		}
		a := int64(lamports)
		req.Amount = &a
	}
	if *planStr != "" {
		addr, err := parseKey("plan", *planStr)
		if err != nil {
			return err
		}
		plan, err := usecase.NewPreflightGuard(e.rpc(), pda.New(e.program)).Plan(ctx, addr)
		if err != nil {
			return err
		}
		cycle := int(plan.BillingCycleDays)
		req.Type = paylink.ModeSubscribe
		req.PlanName = plan.Name
		req.PlanAddress = addr.String()
		req.BillingCycleDays = &cycle
	}

	token, payload, err := codec.Generate(req)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, token)
	if base := e.cfg.HTTP.PublicBaseURL; base != "" {
		fmt.Fprintln(e.out, strings.TrimRight(base, "/")+paylink.CheckoutPath(token))
	}
	fmt.Fprintf(e.out, "expires %s\n", payload.ExpiresAt().UTC().Format(time.RFC3339))
	return nil
}

func cmdVerifyLink(_ context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: usage: verify-link <token>", domain.ErrInvalidArgument)
	}
	codec, err := paylink.NewCodec(e.cfg.Paylink.SignerSecret)
	if err != nil {
		return err
	}
	payload, err := codec.Verify(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func cmdRetryLogs(ctx context.Context, e *env, args []string) error {
	fs := newFlags("retry-logs", e.out)
	batch := fs.Int("batch", 50, "entries to attempt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	outbox, err := e.outbox(ctx)
	if err != nil {
		return err
	}
	if outbox == nil {
		return fmt.Errorf("%w: database.url is required", domain.ErrInvalidConfig)
	}
	orch, err := e.orchestrator(ctx)
	if err != nil {
		return err
	}
	perEntry := e.cfg.Solana.ConfirmTimeout + 30*time.Second
	retrier := sched.NewPaymentLogRetrier(orch, outbox, time.Minute, 0, *batch, e.log,
		sched.WithMaxAttempts(e.cfg.Outbox.MaxAttempts),
		sched.WithEntryTimeout(perEntry),
		sched.WithDrainBudget(time.Duration(*batch)*perEntry),
		sched.WithTxManager(pg.NewTxManager(e.pool)),
	)
	n := retrier.Tick(ctx)
	fmt.Fprintf(e.out, "%d payment logs recorded\n", n)
	return nil
}

func cmdAdminToken(_ context.Context, e *env, args []string) error {
	fs := newFlags("admin-token", e.out)
	subject := fs.String("subject", "operator", "token subject")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	auth, err := web.NewAuthManager(e.cfg.HTTP.AdminJWTSecret, *ttl)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	tok, err := auth.Mint(*subject)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, tok)
	return nil
}

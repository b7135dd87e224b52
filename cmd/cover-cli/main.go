package main

import (
	"flag"
	"fmt"
	"os"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"droughtcover/crypto"
)

func usage() {
	fmt.Println(`cover-cli - parametric drought cover operator tool

Usage:
  cover-cli <command> [flags]

Commands:
  create-offer      Create a new policy offer (provider posts collateral)
  pay-premium       Pay the premium to activate a policy
  sponsor-premium   Pay the premium on behalf of the committed buyer
  cancel            Cancel a policy before activation
  settle            Apply an externally adjudicated settlement (owner only)
  verify-settle     Settle via oracle extraction from two sources
  resolve           Settle from operator-supplied readings (owner only)
  get-policy        Fetch one policy by id
  list-policies     List all policies
  balance           Show the withdrawable balance for an address
  keygen            Generate a fresh keypair and print the address

Global flags (per command):
  -rpc <url>        JSON-RPC endpoint (default http://127.0.0.1:8545)

Mutating commands read the bearer token from COVER_RPC_TOKEN.`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "create-offer":
		err = cmdCreateOffer(os.Args[2:])
	case "pay-premium":
		err = cmdPayPremium(os.Args[2:], "cover_payPremium")
	case "sponsor-premium":
		err = cmdPayPremium(os.Args[2:], "cover_payPremiumForBuyer")
	case "cancel":
		err = cmdCancel(os.Args[2:])
	case "settle":
		err = cmdSettle(os.Args[2:])
	case "verify-settle":
		err = cmdVerifySettle(os.Args[2:])
	case "resolve":
		err = cmdResolve(os.Args[2:])
	case "get-policy":
		err = cmdGetPolicy(os.Args[2:])
	case "list-policies":
		err = cmdListPolicies(os.Args[2:])
	case "balance":
		err = cmdBalance(os.Args[2:])
	case "keygen":
		err = cmdKeygen()
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Printf("unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func cmdCreateOffer(args []string) error {
	fs := flag.NewFlagSet("create-offer", flag.ExitOnError)
	rpcURL := fs.String("rpc", defaultRPCURL, "JSON-RPC endpoint")
	caller := fs.String("caller", "", "provider address (required)")
	id := fs.String("id", "", "policy id (generated when empty)")
	buyer := fs.String("buyer", "", "optional committed buyer address")
	region := fs.String("region", "", "covered region (required)")
	start := fs.String("start", "", "coverage start date YYYY-MM-DD (required)")
	end := fs.String("end", "", "coverage end date YYYY-MM-DD (required)")
	threshold := fs.Int64("threshold", 0, "rainfall trigger threshold in mm (required)")
	payout := fs.String("payout", "", "payout amount (required)")
	premium := fs.String("premium", "", "premium amount (required)")
	collateral := fs.String("collateral", "", "collateral amount, must equal payout (required)")
	fs.Parse(args)

	if *caller == "" || *region == "" || *start == "" || *end == "" || *payout == "" || *premium == "" || *collateral == "" {
		fs.Usage()
		return fmt.Errorf("missing required flags")
	}
	policyID := *id
	if policyID == "" {
		policyID = uuid.NewString()
		fmt.Printf("Generated policy id: %s\n", policyID)
	}
	result, err := rpcCall(*rpcURL, "cover_createPolicyOffer", map[string]interface{}{
		"caller":           *caller,
		"policyId":         policyID,
		"buyer":            *buyer,
		"region":           *region,
		"startDate":        *start,
		"endDate":          *end,
		"thresholdMm":      *threshold,
		"payoutAmount":     *payout,
		"premiumAmount":    *premium,
		"collateralAmount": *collateral,
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func cmdPayPremium(args []string, method string) error {
	fs := flag.NewFlagSet("pay-premium", flag.ExitOnError)
	rpcURL := fs.String("rpc", defaultRPCURL, "JSON-RPC endpoint")
	caller := fs.String("caller", "", "payer address (required)")
	id := fs.String("id", "", "policy id (required)")
	amount := fs.String("amount", "", "premium payment amount (required)")
	fs.Parse(args)

	if *caller == "" || *id == "" || *amount == "" {
		fs.Usage()
		return fmt.Errorf("missing required flags")
	}
	result, err := rpcCall(*rpcURL, method, map[string]interface{}{
		"caller":   *caller,
		"policyId": *id,
		"amount":   *amount,
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func cmdCancel(args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	rpcURL := fs.String("rpc", defaultRPCURL, "JSON-RPC endpoint")
	caller := fs.String("caller", "", "provider or owner address (required)")
	id := fs.String("id", "", "policy id (required)")
	fs.Parse(args)

	if *caller == "" || *id == "" {
		fs.Usage()
		return fmt.Errorf("missing required flags")
	}
	result, err := rpcCall(*rpcURL, "cover_cancelPolicy", map[string]interface{}{
		"caller":   *caller,
		"policyId": *id,
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func cmdSettle(args []string) error {
	fs := flag.NewFlagSet("settle", flag.ExitOnError)
	rpcURL := fs.String("rpc", defaultRPCURL, "JSON-RPC endpoint")
	caller := fs.String("caller", "", "owner address (required)")
	id := fs.String("id", "", "policy id (required)")
	triggered := fs.Bool("triggered", false, "whether the drought trigger fired")
	proof := fs.String("proof", "", "settlement proof hash (required)")
	reason := fs.String("reason", "", "decision reason (required)")
	date := fs.String("date", "", "settlement date YYYY-MM-DD (required)")
	fs.Parse(args)

	if *caller == "" || *id == "" || *proof == "" || *reason == "" || *date == "" {
		fs.Usage()
		return fmt.Errorf("missing required flags")
	}
	result, err := rpcCall(*rpcURL, "cover_settlePolicy", map[string]interface{}{
		"caller":      *caller,
		"policyId":    *id,
		"result":      *triggered,
		"proofHash":   *proof,
		"reason":      *reason,
		"currentDate": *date,
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func cmdVerifySettle(args []string) error {
	fs := flag.NewFlagSet("verify-settle", flag.ExitOnError)
	rpcURL := fs.String("rpc", defaultRPCURL, "JSON-RPC endpoint")
	caller := fs.String("caller", "", "caller address (required)")
	id := fs.String("id", "", "policy id (required)")
	sourceA := fs.String("source-a", "", "first weather data URL (required)")
	sourceB := fs.String("source-b", "", "second weather data URL (required)")
	tolerance := fs.Int64("tolerance", 0, "allowed source divergence in mm")
	date := fs.String("date", "", "settlement date YYYY-MM-DD (required)")
	fs.Parse(args)

	if *caller == "" || *id == "" || *sourceA == "" || *sourceB == "" || *date == "" {
		fs.Usage()
		return fmt.Errorf("missing required flags")
	}
	result, err := rpcCall(*rpcURL, "cover_verifyAndSettlePolicy", map[string]interface{}{
		"caller":      *caller,
		"policyId":    *id,
		"sourceAUrl":  *sourceA,
		"sourceBUrl":  *sourceB,
		"toleranceMm": *tolerance,
		"currentDate": *date,
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func cmdResolve(args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	rpcURL := fs.String("rpc", defaultRPCURL, "JSON-RPC endpoint")
	caller := fs.String("caller", "", "owner address (required)")
	id := fs.String("id", "", "policy id (required)")
	valueA := fs.Int64("value-a", -1, "first source rainfall in mm (required)")
	valueB := fs.Int64("value-b", -1, "second source rainfall in mm (required)")
	tolerance := fs.Int64("tolerance", 0, "allowed source divergence in mm")
	date := fs.String("date", "", "settlement date YYYY-MM-DD (required)")
	fs.Parse(args)

	if *caller == "" || *id == "" || *valueA < 0 || *valueB < 0 || *date == "" {
		fs.Usage()
		return fmt.Errorf("missing required flags")
	}
	result, err := rpcCall(*rpcURL, "cover_resolvePolicyWithValues", map[string]interface{}{
		"caller":      *caller,
		"policyId":    *id,
		"sourceAMm":   *valueA,
		"sourceBMm":   *valueB,
		"toleranceMm": *tolerance,
		"currentDate": *date,
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func cmdGetPolicy(args []string) error {
	fs := flag.NewFlagSet("get-policy", flag.ExitOnError)
	rpcURL := fs.String("rpc", defaultRPCURL, "JSON-RPC endpoint")
	id := fs.String("id", "", "policy id (required)")
	fs.Parse(args)

	if *id == "" {
		fs.Usage()
		return fmt.Errorf("missing required flags")
	}
	result, err := rpcCall(*rpcURL, "cover_getPolicy", map[string]interface{}{"id": *id})
	if err != nil {
		return err
	}
	return printResult(result)
}

func cmdListPolicies(args []string) error {
	fs := flag.NewFlagSet("list-policies", flag.ExitOnError)
	rpcURL := fs.String("rpc", defaultRPCURL, "JSON-RPC endpoint")
	fs.Parse(args)

	result, err := rpcCall(*rpcURL, "cover_listPolicies", nil)
	if err != nil {
		return err
	}
	return printResult(result)
}

func cmdBalance(args []string) error {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	rpcURL := fs.String("rpc", defaultRPCURL, "JSON-RPC endpoint")
	address := fs.String("address", "", "bech32 address (required)")
	fs.Parse(args)

	if *address == "" {
		fs.Usage()
		return fmt.Errorf("missing required flags")
	}
	result, err := rpcCall(*rpcURL, "cover_getWithdrawableBalance", map[string]interface{}{"address": *address})
	if err != nil {
		return err
	}
	return printResult(result)
}

func cmdKeygen() error {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	fmt.Printf("Address:     %s\n", key.PubKey().Address().String())
	fmt.Printf("Private key: %x\n", ethcrypto.FromECDSA(key.PrivateKey))
	return nil
}

// Command routerctl is a small operational CLI for the router: reading
// and flipping the active blue/green color in SSM, and asking a running
// router to drop its routing cache.
//
// Usage:
//
//	routerctl color show --env prod
//	routerctl color set --env prod --color green --confirm
//	routerctl routing reset-cache --url https://router.internal
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/joho/godotenv"

	"github.com/godbolt/ce-router/cmd/mainconfig"
	"github.com/godbolt/ce-router/internal/config"
	"github.com/godbolt/ce-router/internal/routing"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "color":
		runColor(os.Args[2:])
	case "routing":
		runRouting(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: routerctl <color show|color set|routing reset-cache> [flags]")
}

func runColor(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "show":
		fs := flag.NewFlagSet("color show", flag.ExitOnError)
		env := fs.String("env", "", "deployment environment (prod|beta|staging)")
		_ = fs.Parse(args[1:])
		if *env == "" {
			log.Fatal("--env is required")
		}
		colorShow(*env)
	case "set":
		fs := flag.NewFlagSet("color set", flag.ExitOnError)
		env := fs.String("env", "", "deployment environment (prod|beta|staging)")
		color := fs.String("color", "", "color to activate (blue|green)")
		confirm := fs.Bool("confirm", false, "required to actually write the SSM parameter")
		_ = fs.Parse(args[1:])
		if *env == "" || *color == "" {
			log.Fatal("--env and --color are required")
		}
		colorSet(*env, *color, *confirm)
	default:
		usage()
		os.Exit(2)
	}
}

func colorShow(env string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	client := ssm.NewFromConfig(awsCfg)
	path := routing.ColorParameterPath(env)
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{Name: aws.String(path)})
	if err != nil {
		log.Fatalf("get parameter %s: %v", path, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		log.Fatalf("parameter %s has no value", path)
	}
	fmt.Println(strings.TrimSpace(*out.Parameter.Value))
}

func colorSet(env, color string, confirm bool) {
	color = strings.ToLower(strings.TrimSpace(color))
	if color != "blue" && color != "green" {
		log.Fatalf("--color must be blue or green, got %q", color)
	}
	if !confirm {
		log.Fatal("refusing to flip active color without --confirm")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	client := ssm.NewFromConfig(awsCfg)
	path := routing.ColorParameterPath(env)
	if _, err := client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(color),
		Type:      ssmtypes.ParameterTypeString,
		Overwrite: aws.Bool(true),
	}); err != nil {
		log.Fatalf("put parameter %s: %v", path, err)
	}
	fmt.Printf("active color for %s is now %s\n", env, color)
}

func runRouting(args []string) {
	if len(args) < 1 || args[0] != "reset-cache" {
		usage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet("routing reset-cache", flag.ExitOnError)
	url := fs.String("url", "", "base URL of the running router, e.g. https://router.internal")
	_ = fs.Parse(args[1:])
	if *url == "" {
		log.Fatal("--url is required")
	}

	resp, err := http.Post(strings.TrimRight(*url, "/")+"/admin/routing/reset", "application/json", nil)
	if err != nil {
		log.Fatalf("reset request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("reset request returned status %d", resp.StatusCode)
	}
	fmt.Println("routing cache reset")
}

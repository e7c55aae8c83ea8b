package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"
)

var client = &http.Client{Timeout: 30 * time.Second}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "auth":
		err = handleAuth(args)
	case "admin":
		err = handleAdmin(args)
	case "report":
		err = handleReport(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func handleAuth(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: kishkumen auth <register|login|logout>")
		return nil
	}

	switch args[0] {
	case "register":
		return registerBusiness(args[1:])
	case "login":
		return login(args[1:])
	case "logout":
		_ = os.Remove(tokenFile())
		fmt.Println("✓ Logged out")
		return nil
	default:
		return fmt.Errorf("unknown auth command: %s", args[0])
	}
}

func handleAdmin(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: kishkumen admin <pending|tenants|approve <token>>")
		return nil
	}

	switch args[0] {
	case "pending":
		return listPending()
	case "tenants":
		return listTenants()
	case "approve":
		if len(args) < 2 {
			return fmt.Errorf("usage: kishkumen admin approve <token>")
		}
		return approve(args[1])
	default:
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func handleReport(args []string) error {
	if len(args) < 1 || args[0] != "pnl" {
		fmt.Println("Usage: kishkumen report pnl -from YYYY-MM-DD -to YYYY-MM-DD")
		return nil
	}
	return profitLoss(args[1:])
}

// Auth commands
func registerBusiness(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	business := fs.String("business", "", "business name")
	username := fs.String("username", "", "owner username")
	email := fs.String("email", "", "owner email")
	password := fs.String("password", "", "owner password")
	first := fs.String("first", "", "owner first name")
	last := fs.String("last", "", "owner last name")
	_ = fs.Parse(args)

	if *business == "" || *username == "" || *email == "" || *password == "" {
		fs.PrintDefaults()
		return fmt.Errorf("business, username, email and password are required")
	}

	var result struct {
		Pending bool   `json:"pending"`
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	status, err := call(http.MethodPost, "/auth/register", map[string]string{
		"businessName": *business,
		"username":     *username,
		"email":        *email,
		"password":     *password,
		"firstName":    *first,
		"lastName":     *last,
	}, &result)
	if err != nil {
		return err
	}

	if status == http.StatusAccepted || result.Pending {
		fmt.Printf("✓ Registration received for %s, awaiting approval\n", *business)
		return nil
	}
	if err := saveToken(result.Token); err != nil {
		return err
	}
	fmt.Printf("✓ Registered %s, logged in as %s\n", *business, *username)
	return nil
}

func login(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")
	_ = fs.Parse(args)

	if *username == "" || *password == "" {
		fs.PrintDefaults()
		return fmt.Errorf("username and password are required")
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if _, err := call(http.MethodPost, "/auth/login", map[string]string{"username": *username, "password": *password}, &result); err != nil {
		return err
	}
	if err := saveToken(result.Token); err != nil {
		return err
	}
	fmt.Printf("✓ Logged in as %s (expires %s)\n", *username, result.ExpiresAt.Format(time.RFC3339))
	return nil
}

// Admin commands
func listPending() error {
	var pending []struct {
		UserID       int64     `json:"userId"`
		Username     string    `json:"username"`
		Email        string    `json:"email"`
		BusinessName string    `json:"businessName"`
		ExpiresAt    time.Time `json:"expiresAt"`
	}
	if _, err := call(http.MethodGet, "/admin/registrations", nil, &pending); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tUSERNAME\tEMAIL\tBUSINESS\tEXPIRES")
	for _, p := range pending {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.UserID, p.Username, p.Email, p.BusinessName, p.ExpiresAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func listTenants() error {
	var tenants []struct {
		ID          int64     `json:"id"`
		Name        string    `json:"name"`
		NamespaceID string    `json:"namespaceId"`
		CreatedAt   time.Time `json:"createdAt"`
	}
	if _, err := call(http.MethodGet, "/admin/tenants", nil, &tenants); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tNAMESPACE\tCREATED")
	for _, t := range tenants {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", t.ID, t.Name, t.NamespaceID, t.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func approve(token string) error {
	var result struct {
		TenantID    int64  `json:"tenantId"`
		TenantName  string `json:"tenantName"`
		NamespaceID string `json:"namespaceId"`
	}
	if _, err := call(http.MethodPost, "/auth/approve/"+url.PathEscape(token), nil, &result); err != nil {
		return err
	}
	fmt.Printf("✓ Approved %s (tenant %d, namespace %s)\n", result.TenantName, result.TenantID, result.NamespaceID)
	return nil
}

// Report commands
func profitLoss(args []string) error {
	fs := flag.NewFlagSet("pnl", flag.ExitOnError)
	from := fs.String("from", "", "first day, YYYY-MM-DD")
	to := fs.String("to", "", "last day, YYYY-MM-DD")
	_ = fs.Parse(args)

	if *from == "" || *to == "" {
		fs.PrintDefaults()
		return fmt.Errorf("from and to are required")
	}

	q := url.Values{"startDate": {*from}, "endDate": {*to}}
	var pl map[string]any
	if _, err := call(http.MethodGet, "/reports/profit-loss?"+q.Encode(), nil, &pl); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Period\t%s .. %s\t\n", *from, *to)
	for _, row := range []struct{ label, key string }{
		{"Revenue", "revenue"},
		{"Cost of goods", "cogs"},
		{"Gross profit", "grossProfit"},
		{"Fixed expenses", "fixedExpenses"},
		{"Variable expenses", "variableExpenses"},
		{"Total expenses", "totalExpenses"},
		{"Net profit", "netProfit"},
	} {
		fmt.Fprintf(w, "%s\t%v\t\n", row.label, pl[row.key])
	}
	return w.Flush()
}

// Helper functions

// call sends body as JSON and decodes a 2xx response into out. Any other
// status becomes an error carrying the server's message.
func call(method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, apiURL()+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := loadToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, fmt.Errorf("%s (%d)", apiErr.Error, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func apiURL() string {
	if u := os.Getenv("KISHKUMEN_API"); u != "" {
		return u
	}
	return "http://localhost:8080/api"
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".kishkumen", "token")
}

func saveToken(token string) error {
	if token == "" {
		return fmt.Errorf("server returned no token")
	}
	if err := os.MkdirAll(filepath.Dir(tokenFile()), 0o700); err != nil {
		return err
	}
	return os.WriteFile(tokenFile(), []byte(token), 0o600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return string(bytes.TrimSpace(data))
}

func printUsage() {
	fmt.Print(`Kishkumen CLI

Usage:
  kishkumen <command> [options]

Commands:
  auth     Authentication (register, login, logout)
  admin    Operator views (pending, tenants, approve <token>)
  report   Reports (pnl -from -to)
  help     Show this help message

Environment Variables:
  KISHKUMEN_API    API endpoint (default: http://localhost:8080/api)

Examples:
  kishkumen auth register -business "Acme Bakery" -username alice -email alice@acme.test -password secret1 -first Alice -last Baker
  kishkumen auth login -username alice -password secret1
  kishkumen admin pending
  kishkumen report pnl -from 2026-03-01 -to 2026-03-31
`)
}

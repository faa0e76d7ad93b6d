package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

const testCSV = "order_id,customer_id,order_status,order_purchase_timestamp,order_approved_at," +
	"order_delivered_carrier_date,order_delivered_customer_date,order_estimated_delivery_date," +
	"product_id,product_category_name,product_category_name_english,qty_order,price,freight_value," +
	"payment_type,payment_value,review_score,customer_city,customer_state\n" +
	"o1,c1,delivered,2017-10-02 10:56:33,2017-10-02 11:07:15,2017-10-04 19:55:00,2017-10-10 21:25:13,2017-10-18 00:00:00," +
	"p1,utilidades_domesticas,housewares,1,29.99,8.72,credit_card,38.71,4,sao paulo,SP\n" +
	"o2,c2,shipped,2018-01-05 08:00:00,2018-01-05 09:00:00,2018-01-07 10:00:00,,2018-01-20 00:00:00," +
	"p2,brinquedos,toys,2,50,10,boleto,110,5,rio de janeiro,RJ\n"

func writeDataset(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "all_data.csv")
	require.NoError(t, os.WriteFile(path, []byte(testCSV), 0o600))
	return path
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-dataset=orders.csv", "-start=2018-01-01", "-end=2018-01-31", "-status=delivered", "-top-n=5", "-pretty"})
	require.NoError(t, err)
	assert.Equal(t, "orders.csv", opts.datasetPath)
	assert.Equal(t, "2018-01-01", opts.start.Format(domain.DateLayout))
	assert.Equal(t, "2018-01-31", opts.end.Format(domain.DateLayout))
	assert.Equal(t, domain.OrderStatusDelivered, opts.status)
	assert.Equal(t, 5, opts.topN)
	assert.True(t, opts.pretty)
	assert.False(t, opts.summary)

	opts, err = parseOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultDataset, opts.datasetPath)
	assert.True(t, opts.start.IsZero())
	assert.Equal(t, domain.StatusAll, opts.status)
}

func TestParseOptions_Errors(t *testing.T) {
	cases := map[string][]string{
		"empty dataset":   {"-dataset= "},
		"bad start":       {"-start=01/01/2018"},
		"bad end":         {"-end=2018-13-01"},
		"zero top-n":      {"-top-n=0"},
		"negative points": {"-max-scatter-points=-1"},
		"unknown flag":    {"-unknown"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseOptions(args)
			require.Error(t, err)
		})
	}
}

func TestRun_Report(t *testing.T) {
	opts, err := parseOptions([]string{"-dataset=" + writeDataset(t), "-status=delivered"})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), opts, &out))

	var report domain.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 1, report.Rows)
	assert.Equal(t, domain.OrderStatusDelivered, report.Status)
	assert.Equal(t, "38.71", report.Stats.TotalRevenue.String())
}

func TestRun_Summary(t *testing.T) {
	opts, err := parseOptions([]string{"-dataset=" + writeDataset(t), "-summary", "-pretty"})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), opts, &out))
	assert.Contains(t, out.String(), "\n  \"rows\": 2")

	var snapshot domain.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &snapshot))
	assert.Equal(t, 2, snapshot.Rows)
	assert.NotEmpty(t, snapshot.ID)
	assert.Equal(t, "2017-10-02", snapshot.Period.Min.Format(domain.DateLayout))
}

func TestRun_Errors(t *testing.T) {
	opts, err := parseOptions([]string{"-dataset=" + filepath.Join(t.TempDir(), "missing.csv")})
	require.NoError(t, err)
	require.Error(t, run(context.Background(), opts, &bytes.Buffer{}))

	opts, err = parseOptions([]string{"-dataset=" + writeDataset(t), "-status=approved"})
	require.NoError(t, err)
	err = run(context.Background(), opts, &bytes.Buffer{})
	require.ErrorIs(t, err, domain.ErrUnknownStatus)

	opts, err = parseOptions([]string{"-dataset=" + writeDataset(t), "-start=2018-02-01", "-end=2018-01-01"})
	require.NoError(t, err)
	err = run(context.Background(), opts, &bytes.Buffer{})
	require.ErrorIs(t, err, domain.ErrInvalidDateRange)
}

func TestFailExits(t *testing.T) {
	if os.Getenv("REPORT_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "REPORT_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotZero(t, exitErr.ExitCode())
}

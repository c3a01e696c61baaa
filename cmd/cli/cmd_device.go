package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/models"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage air quality monitors",
	Long:  `Register devices, issue API keys and change device status.`,
}

var deviceAddCmd = &cobra.Command{
	Use:   "add <device_id>",
	Short: "Register a new device",
	Long: `Register a new device and print its API key. The key is shown once;
only its hash is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeviceAdd,
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all devices",
	Long:  `Display all registered devices. Output is JSON when stdout is not a terminal.`,
	RunE:  runDeviceList,
}

var deviceShowCmd = &cobra.Command{
	Use:   "show <device_id>",
	Short: "Show one device",
	Long:  `Display a single device. Output is JSON when stdout is not a terminal.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDeviceShow,
}

var deviceRotateKeyCmd = &cobra.Command{
	Use:   "rotate-key <device_id>",
	Short: "Issue a new API key",
	Long:  `Deactivate every key of the device and print a new one.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDeviceRotateKey,
}

var deviceSetStatusCmd = &cobra.Command{
	Use:   "set-status <device_id> <active|inactive|maintenance>",
	Short: "Change the lifecycle status of a device",
	Long:  `Change the lifecycle status of a device. Only active devices may submit readings.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runDeviceSetStatus,
}

func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.AddCommand(deviceAddCmd)
	deviceCmd.AddCommand(deviceListCmd)
	deviceCmd.AddCommand(deviceShowCmd)
	deviceCmd.AddCommand(deviceRotateKeyCmd)
	deviceCmd.AddCommand(deviceSetStatusCmd)

	deviceAddCmd.Flags().String("name", "", "display name (defaults to the device id)")
	deviceAddCmd.Flags().String("location", "", "where the device is installed")
	deviceAddCmd.Flags().String("description", "", "free-form description")
	deviceAddCmd.Flags().String("firmware", "1.0.0", "firmware version")

	deviceListCmd.Flags().Bool("json", false, "always print JSON")
	deviceShowCmd.Flags().Bool("json", false, "always print JSON")
}

func runDeviceAdd(cmd *cobra.Command, args []string) error {
	dbManager, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	name, _ := cmd.Flags().GetString("name")
	location, _ := cmd.Flags().GetString("location")
	description, _ := cmd.Flags().GetString("description")
	firmware, _ := cmd.Flags().GetString("firmware")

	device := &models.Device{
		DeviceID:        args[0],
		DeviceName:      name,
		Location:        location,
		Description:     description,
		FirmwareVersion: firmware,
	}

	apiKey, err := dbManager.CreateDevice(cmd.Context(), device)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\n"+strings.Repeat("=", 60))
	fmt.Fprintf(out, "✓ Device created: %s (%s)\n", device.DeviceID, device.ID)
	fmt.Fprintf(out, "API key: %s\n", apiKey)
	fmt.Fprintln(out, "Store this key on the device now; it cannot be shown again.")
	fmt.Fprintln(out, strings.Repeat("=", 60))
	return nil
}

func runDeviceList(cmd *cobra.Command, args []string) error {
	dbManager, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	devices, err := dbManager.ListDevices(cmd.Context())
	if err != nil {
		return err
	}
	return printDevices(cmd, devices, devices)
}

func runDeviceShow(cmd *cobra.Command, args []string) error {
	dbManager, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	device, err := dbManager.GetDevice(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printDevices(cmd, device, []models.Device{*device})
}

// printDevices writes v as JSON for scripts and rows as a table for terminals
func printDevices(cmd *cobra.Command, v any, rows []models.Device) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON || !term.IsTerminal(int(os.Stdout.Fd())) {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	printDeviceTable(cmd.OutOrStdout(), rows)
	return nil
}

func printDeviceTable(w io.Writer, devices []models.Device) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices registered.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE ID\tNAME\tSTATUS\tONLINE\tLAST SEEN\tIP\tFIRMWARE")
	for _, d := range devices {
		lastSeen := "never"
		if d.LastSeen != nil {
			lastSeen = d.LastSeen.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\t%s\n",
			d.DeviceID, d.DeviceName, d.Status, d.IsOnline, lastSeen, d.IPAddress, d.FirmwareVersion)
	}
	tw.Flush()
}

func runDeviceRotateKey(cmd *cobra.Command, args []string) error {
	dbManager, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	apiKey, err := dbManager.RotateDeviceKey(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to rotate key: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ New API key for %s: %s\n", args[0], apiKey)
	return nil
}

func runDeviceSetStatus(cmd *cobra.Command, args []string) error {
	dbManager, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	if err := dbManager.SetDeviceStatus(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Device %s is now %s\n", args[0], args[1])
	return nil
}

// Command adbutil is a small adb replacement built on the library, covering
// the daily operations: listing devices, pushing and pulling files,
// installing apks, managing forwards and recording the screen.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cheggaaa/pb"
	log "github.com/sirupsen/logrus"

	adb "github.com/openatx/goadbutils"
)

var (
	app     = kingpin.New("adbutil", "An adb client talking directly to the adb server.")
	serial  = app.Flag("serial", "Connect to device by serial number.").Short('s').String()
	port    = app.Flag("port", "Port the adb server listens on.").Short('p').Default("5037").Int()
	verbose = app.Flag("verbose", "Enable debug logging.").Short('v').Bool()

	devicesCmd  = app.Command("devices", "List connected devices.")
	devicesLong = devicesCmd.Flag("long", "Include device descriptions.").Short('l').Bool()

	shellCmd     = app.Command("shell", "Run a shell command on the device.")
	shellCmdline = shellCmd.Arg("command", "Command to run.").Required().Strings()

	pushCmd    = app.Command("push", "Push a local file to the device.")
	pushLocal  = pushCmd.Arg("local", "Local file.").Required().ExistingFile()
	pushRemote = pushCmd.Arg("remote", "Remote path.").Required().String()

	pullCmd      = app.Command("pull", "Pull a file from the device.")
	pullRemote   = pullCmd.Arg("remote", "Remote file.").Required().String()
	pullLocal    = pullCmd.Arg("local", "Local path.").Required().String()
	pullShowProg = pullCmd.Flag("progress", "Show progress bar.").Default("true").Bool()

	installCmd       = app.Command("install", "Install an apk from a file or URL.")
	installPath      = installCmd.Arg("apk", "Local apk path or http(s) URL.").Required().String()
	installLaunch    = installCmd.Flag("launch", "Launch the app after install.").Bool()
	installUninstall = installCmd.Flag("uninstall", "Uninstall an existing copy first.").Bool()
	installKeep      = installCmd.Flag("keep", "Keep the staged apk on the device after success.").Bool()

	forwardCmd    = app.Command("forward", "Forward a host port to a device endpoint.")
	forwardList   = forwardCmd.Flag("list", "List active forwards.").Bool()
	forwardLocal  = forwardCmd.Arg("local", "Host endpoint, e.g. tcp:6100.").String()
	forwardRemote = forwardCmd.Arg("remote", "Device endpoint, e.g. tcp:7100.").String()

	recordCmd      = app.Command("record", "Record the screen until interrupted.")
	recordOut      = recordCmd.Arg("output", "Local mp4 path.").Required().String()
	recordDuration = recordCmd.Flag("duration", "Stop after this long (0 means until ctrl-c).").Default("0s").Duration()

	watchCmd = app.Command("watch", "Watch device connect and disconnect events.")

	currentAppCmd = app.Command("current-app", "Print the foreground app.")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	client, err := adb.NewWithConfig(adb.ServerConfig{Port: *port, AutoStart: true})
	if err != nil {
		log.Fatal(err)
	}

	switch command {
	case devicesCmd.FullCommand():
		err = listDevices(client)
	case shellCmd.FullCommand():
		err = runShell(device(client))
	case pushCmd.FullCommand():
		err = push(device(client))
	case pullCmd.FullCommand():
		err = pull(device(client))
	case installCmd.FullCommand():
		err = install(device(client))
	case forwardCmd.FullCommand():
		err = forward(device(client))
	case recordCmd.FullCommand():
		err = record(device(client))
	case watchCmd.FullCommand():
		err = watch(client)
	case currentAppCmd.FullCommand():
		err = currentApp(device(client))
	}
	if err != nil {
		log.Fatal(err)
	}
}

func device(client *adb.Adb) *adb.Device {
	if *serial != "" {
		return client.Device(adb.DeviceWithSerial(*serial))
	}
	return client.Device(adb.AnyDevice())
}

func listDevices(client *adb.Adb) error {
	devices, err := client.ListDevices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		if *devicesLong {
			fmt.Printf("%s\t%s %s %s\n", d.Serial, d.Product, d.Model, d.DeviceInfo)
		} else {
			fmt.Println(d.Serial)
		}
	}
	return nil
}

func runShell(d *adb.Device) error {
	cmdline := ""
	for i, part := range *shellCmdline {
		if i > 0 {
			cmdline += " "
		}
		cmdline += part
	}

	result, err := d.ShellDetail(cmdline)
	if err != nil {
		return err
	}
	fmt.Print(result.Output)
	os.Exit(result.ExitCode)
	return nil
}

func newProgressBar() (*pb.ProgressBar, func(sent, total int64)) {
	bar := pb.New64(0).SetUnits(pb.U_BYTES)
	started := false
	return bar, func(sent, total int64) {
		if !started {
			bar.Total = total
			bar.Start()
			started = true
		}
		bar.Set64(sent)
	}
}

func push(d *adb.Device) error {
	bar, progress := newProgressBar()
	defer bar.Finish()
	return d.PushFile(*pushLocal, *pushRemote, progress)
}

func pull(d *adb.Device) error {
	var progress func(sent, total int64)
	if *pullShowProg {
		bar, p := newProgressBar()
		defer bar.Finish()
		progress = p
	}
	return d.PullFile(*pullRemote, *pullLocal, progress)
}

func install(d *adb.Device) error {
	bar, progress := newProgressBar()
	report, err := d.InstallAPK(*installPath, adb.InstallOptions{
		Launch:    *installLaunch,
		Uninstall: *installUninstall,
		Clean:     !*installKeep,
		Progress:  progress,
		OnStage: func(stage adb.InstallStage, detail string) {
			bar.Finish()
			fmt.Printf("[%s] %s\n", stage, detail)
		},
	})
	if err != nil {
		return err
	}
	fmt.Printf("installed %s (%s), %d bytes pushed\n", report.PackageName, report.VersionName, report.BytesPushed)
	return nil
}

func forward(d *adb.Device) error {
	if *forwardList {
		entries, err := d.ForwardList()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Println(e)
		}
		return nil
	}
	if *forwardLocal == "" || *forwardRemote == "" {
		return fmt.Errorf("forward needs <local> and <remote> endpoints")
	}
	return d.Forward(*forwardLocal, *forwardRemote, false)
}

func record(d *adb.Device) error {
	recorder := adb.NewScreenRecorder(d)
	remote := fmt.Sprintf("/sdcard/adbutil-record-%d.mp4", time.Now().Unix())
	if err := recorder.Start(remote); err != nil {
		return err
	}

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt)
	if *recordDuration > 0 {
		select {
		case <-interrupted:
		case <-time.After(*recordDuration):
		}
	} else {
		fmt.Println("recording, press ctrl-c to stop")
		<-interrupted
	}

	return recorder.StopAndPull(*recordOut)
}

func watch(client *adb.Adb) error {
	watcher := client.NewDeviceWatcher()
	defer watcher.Shutdown()
	for event := range watcher.C() {
		switch {
		case event.CameOnline():
			fmt.Printf("%s online\n", event.Serial)
		case event.WentOffline():
			fmt.Printf("%s offline\n", event.Serial)
		default:
			fmt.Printf("%s %s -> %s\n", event.Serial, event.OldState, event.NewState)
		}
	}
	return watcher.Err()
}

func currentApp(d *adb.Device) error {
	app, err := d.CurrentApp()
	if err != nil {
		return err
	}
	fmt.Println(app)
	return nil
}

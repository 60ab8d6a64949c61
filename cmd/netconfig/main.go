// Write the default CIFAR-10 network definition to a config file which can be edited and passed
// to the train command.
package main

import (
	"fmt"
	"os"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/cifar10"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/nnet"
	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
)

func main() {
	parser := argparse.NewParser("netconfig", "Write the default network config")
	output := parser.String("o", "output", &argparse.Options{Help: "Output config file", Default: "cifar10.conf"})
	settings := parser.StringList("", "set", &argparse.Options{Help: "Override a config setting with Name=value"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	conf, err := nnet.DefaultConfig().SetValues(*settings)
	nnet.CheckErr(err)
	// check the layers are valid before saving
	net := nnet.New(nil, conf, []int{cifar10.Height, cifar10.Width, cifar10.Channels}, nnet.SetSeed(conf.RandSeed))
	logger.Infof("%s", net)
	nnet.CheckErr(conf.Save(*output))
	logger.Infof("saved config to %s", *output)
}

// tscli is a small admin tool for the tablet store: create, alter,
// inspect and delete tables from the command line.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tabletstore/client-go/client"
	"github.com/tabletstore/client-go/model/pkg/metapb"
	"github.com/tabletstore/client-go/util/config"
	"github.com/tabletstore/client-go/util/log"
)

var (
	configFile = flag.String("config", "", "config file path")
	masters    = flag.String("masters", "", "comma separated master addresses (overrides the config file)")
	section    = flag.String("section", "client", "config section to read")
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: tscli [flags] <command> [args]

commands:
  create <table> <col:type[:key]>...   create a table
  delete <table>                       delete a table
  schema <table>                       print the table schema
  rename <table> <newname>             rename a table
`)
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Parse()
	defer log.Flush()

	addrs := masterAddrs()
	if len(addrs) == 0 {
		fmt.Fprintln(os.Stderr, "no master addresses configured")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		usage()
	}

	cli, err := client.NewClient(&client.Config{MasterAddrs: addrs})
	if err != nil {
		log.Fatal("init client failed, err[%v]", err)
	}
	defer cli.Close()

	args := flag.Args()
	switch args[0] {
	case "create":
		if len(args) < 3 {
			usage()
		}
		cols, err := parseColumns(args[2:])
		if err != nil {
			log.Fatal("bad column spec: %v", err)
		}
		err = cli.CreateTable(args[1], cols, nil)
		exit(err, "table %s created", args[1])
	case "delete":
		if len(args) != 2 {
			usage()
		}
		err = cli.DeleteTable(args[1])
		exit(err, "table %s deleted", args[1])
	case "schema":
		if len(args) != 2 {
			usage()
		}
		schema, err := cli.GetTableSchema(args[1])
		if err != nil {
			log.Fatal("get schema failed, err[%v]", err)
		}
		for _, col := range schema.GetColumns() {
			key := ""
			if col.GetPrimaryKey() > 0 {
				key = fmt.Sprintf(" key(%d)", col.GetPrimaryKey())
			}
			fmt.Printf("%s %s%s\n", col.GetName(), col.GetDataType(), key)
		}
	case "rename":
		if len(args) != 3 {
			usage()
		}
		err = cli.AlterTable(args[1], client.NewAlterTableBuilder().RenameTable(args[2]))
		exit(err, "table %s renamed to %s", args[1], args[2])
	default:
		usage()
	}
}

func masterAddrs() []string {
	if *masters != "" {
		return strings.Split(*masters, ",")
	}
	if *configFile == "" {
		return nil
	}
	conf, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("load config failed, err[%v]", err)
	}
	if conf.HasSection(*section) {
		conf.SetSection(*section)
	}
	addrs, _ := conf.String("master.addrs")
	if addrs == "" {
		return nil
	}
	return strings.Split(addrs, ",")
}

// parseColumns turns "name:type" or "name:type:N" (N = key position)
// specs into schema columns.
func parseColumns(specs []string) ([]*metapb.Column, error) {
	var cols []*metapb.Column
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("bad column spec %q", spec)
		}
		dt, err := parseType(parts[1])
		if err != nil {
			return nil, err
		}
		col := &metapb.Column{Name: parts[0], DataType: dt}
		if len(parts) == 3 {
			pos, err := strconv.ParseUint(parts[2], 10, 32)
			if err != nil || pos == 0 {
				return nil, fmt.Errorf("bad key position in %q", spec)
			}
			col.PrimaryKey = pos
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func parseType(s string) (metapb.DataType, error) {
	switch strings.ToLower(s) {
	case "int":
		return metapb.TypeInt, nil
	case "bigint":
		return metapb.TypeBigInt, nil
	case "float":
		return metapb.TypeFloat, nil
	case "varchar", "string":
		return metapb.TypeVarchar, nil
	case "date":
		return metapb.TypeDate, nil
	case "timestamp":
		return metapb.TypeTimestamp, nil
	}
	return metapb.TypeInvalid, fmt.Errorf("unknown type %q", s)
}

func exit(err error, format string, args ...interface{}) {
	if err != nil {
		log.Fatal("command failed, err[%v]", err)
	}
	fmt.Printf(format+"\n", args...)
}

package tokadapt

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/system"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
)

type MakeCreateInstructionsArgs struct {
	Payer     ed25519.PublicKey
	State     ed25519.PublicKey
	Admin     ed25519.PublicKey
	InputMint ed25519.PublicKey

	// OutputStorage is an existing token account owned by the output storage
	// authority. When nil, the authority's associated account for OutputMint
	// is created and used instead.
	OutputStorage ed25519.PublicKey

	// NewOutputStorage creates OutputStorage as a fresh token account for
	// OutputMint. The OutputStorage key must sign the transaction.
	NewOutputStorage bool

	OutputMint ed25519.PublicKey

	// Rent exempt balances for the state and a token account.
	StateLamports         uint64
	OutputStorageLamports uint64
}

// MakeCreateInstructions allocates a state account owned by the program,
// optionally creates the output storage bound to the state's derived
// authority, and initializes the state.
func MakeCreateInstructions(args *MakeCreateInstructionsArgs) ([]solana.Instruction, ed25519.PublicKey, error) {
	authority, _, err := GetOutputStorageAuthorityAddress(&GetOutputStorageAuthorityAddressArgs{
		State: args.State,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "error deriving output storage authority")
	}

	instructions := []solana.Instruction{
		system.CreateAccount(
			args.Payer,
			args.State,
			ProgramID(),
			args.StateLamports,
			StateAccountAllocationSize,
		),
	}

	outputStorage := args.OutputStorage
	switch {
	case outputStorage == nil:
		if args.OutputMint == nil {
			return nil, nil, errors.New("one of output storage or output mint must be set")
		}

		var createAta solana.Instruction
		createAta, outputStorage, err = token.CreateAssociatedTokenAccount(args.Payer, authority, args.OutputMint)
		if err != nil {
			return nil, nil, errors.Wrap(err, "error creating output storage instruction")
		}
		instructions = append(instructions, createAta)
	case args.NewOutputStorage:
		if args.OutputMint == nil {
			return nil, nil, errors.New("output mint must be set when creating output storage")
		}

		instructions = append(
			instructions,
			system.CreateAccount(
				args.Payer,
				outputStorage,
				token.ProgramKey,
				args.OutputStorageLamports,
				token.AccountSize,
			),
			token.InitializeAccount(outputStorage, args.OutputMint, authority),
		)
	}

	instructions = append(instructions, NewInitializeInstruction(
		&InitializeInstructionAccounts{
			State:         args.State,
			OutputStorage: outputStorage,
		},
		&InitializeInstructionArgs{
			Admin:     args.Admin,
			InputMint: args.InputMint,
		},
	))

	return instructions, outputStorage, nil
}

type MakeSwapInstructionsArgs struct {
	State          ed25519.PublicKey
	InputAuthority ed25519.PublicKey
	InputMint      ed25519.PublicKey
	OutputStorage  ed25519.PublicKey
	OutputMint     ed25519.PublicKey

	// Amount defaults to MaxAmount when nil.
	Amount *uint64

	// Input defaults to the input authority's associated account.
	Input ed25519.PublicKey

	// Output defaults to the associated account of OutputOwner, which itself
	// defaults to the input authority.
	Output      ed25519.PublicKey
	OutputOwner ed25519.PublicKey

	// CreateOutput prepends an idempotent associated account creation for a
	// defaulted Output, funded by Payer.
	CreateOutput bool
	Payer        ed25519.PublicKey
}

func MakeSwapInstructions(args *MakeSwapInstructionsArgs) ([]solana.Instruction, error) {
	var instructions []solana.Instruction
	var err error

	amount := MaxAmount
	if args.Amount != nil {
		amount = *args.Amount
	}

	input := args.Input
	if input == nil {
		input, err = token.GetAssociatedAccount(args.InputAuthority, args.InputMint)
		if err != nil {
			return nil, errors.Wrap(err, "error getting input account")
		}
	}

	output := args.Output
	if output == nil {
		if args.OutputMint == nil {
			return nil, errors.New("output mint must be set when output is not")
		}

		owner := args.OutputOwner
		if owner == nil {
			owner = args.InputAuthority
		}

		if args.CreateOutput {
			payer := args.Payer
			if payer == nil {
				payer = args.InputAuthority
			}

			var createAta solana.Instruction
			createAta, output, err = token.CreateAssociatedTokenAccountIdempotent(payer, owner, args.OutputMint)
			if err != nil {
				return nil, errors.Wrap(err, "error creating output instruction")
			}
			instructions = append(instructions, createAta)
		} else {
			output, err = token.GetAssociatedAccount(owner, args.OutputMint)
			if err != nil {
				return nil, errors.Wrap(err, "error getting output account")
			}
		}
	}

	authority, _, err := GetOutputStorageAuthorityAddress(&GetOutputStorageAuthorityAddressArgs{
		State: args.State,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error deriving output storage authority")
	}

	instructions = append(instructions, NewSwapInstruction(
		&SwapInstructionAccounts{
			State:                  args.State,
			Input:                  input,
			InputAuthority:         args.InputAuthority,
			InputMint:              args.InputMint,
			OutputStorage:          args.OutputStorage,
			OutputStorageAuthority: authority,
			Target:                 output,
		},
		&SwapInstructionArgs{
			Amount: amount,
		},
	))

	return instructions, nil
}

type MakeCloseInstructionsArgs struct {
	State          ed25519.PublicKey
	AdminAuthority ed25519.PublicKey
	OutputStorage  ed25519.PublicKey
	OutputMint     ed25519.PublicKey
	RentCollector  ed25519.PublicKey

	// TokenCollector defaults to the rent collector's associated account.
	TokenCollector ed25519.PublicKey

	// CreateTokenCollector prepends an idempotent associated account creation
	// for a defaulted TokenCollector, funded by Payer.
	CreateTokenCollector bool
	Payer                ed25519.PublicKey
}

func MakeCloseInstructions(args *MakeCloseInstructionsArgs) ([]solana.Instruction, error) {
	var instructions []solana.Instruction
	var err error

	tokenCollector := args.TokenCollector
	if tokenCollector == nil {
		if args.OutputMint == nil {
			return nil, errors.New("output mint must be set when token collector is not")
		}

		if args.CreateTokenCollector {
			payer := args.Payer
			if payer == nil {
				payer = args.AdminAuthority
			}

			var createAta solana.Instruction
			createAta, tokenCollector, err = token.CreateAssociatedTokenAccountIdempotent(payer, args.RentCollector, args.OutputMint)
			if err != nil {
				return nil, errors.Wrap(err, "error creating token collector instruction")
			}
			instructions = append(instructions, createAta)
		} else {
			tokenCollector, err = token.GetAssociatedAccount(args.RentCollector, args.OutputMint)
			if err != nil {
				return nil, errors.Wrap(err, "error getting token collector account")
			}
		}
	}

	authority, _, err := GetOutputStorageAuthorityAddress(&GetOutputStorageAuthorityAddressArgs{
		State: args.State,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error deriving output storage authority")
	}

	instructions = append(instructions, NewCloseInstruction(
		&CloseInstructionAccounts{
			State:                  args.State,
			AdminAuthority:         args.AdminAuthority,
			OutputStorage:          args.OutputStorage,
			OutputStorageAuthority: authority,
			TokenTarget:            tokenCollector,
			RentCollector:          args.RentCollector,
		},
	))

	return instructions, nil
}
